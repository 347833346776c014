// Package governance holds the client-side controls applied to calls against
// the remote numbers service: per-request and per-run deadlines, and an
// optional token bucket that paces the row fetch fan-out.
//
// Nothing here retries. A call that exceeds its deadline fails, and the
// pipeline treats that failure as fatal.
package governance
