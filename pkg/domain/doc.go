// Package domain defines the core types and error kinds shared by the matrix
// passphrase pipeline.
//
// This package has ZERO external dependencies outside the Go standard
// library. Fetching, assembly, multiplication and validation live in their
// own packages and depend on the types declared here:
//
//	remote, fetcher, pipeline → domain (CORRECT)
//	domain → remote, fetcher, pipeline (FORBIDDEN)
//
// Every error kind matches a sentinel through errors.Is so callers can branch
// on the kind without caring about the concrete type.
package domain
