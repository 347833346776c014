package domain

// Dataset names a server-side matrix fetched row by row.
type Dataset string

// Datasets served by the remote numbers service.
const (
	DatasetA Dataset = "A"
	DatasetB Dataset = "B"
)

// RowResponse is the decoded payload of a single row fetch.
type RowResponse struct {
	Value   []int   `json:"value"`
	Cause   *string `json:"cause"`
	Success bool    `json:"success"`
}

// CauseText returns the failure cause reported by the service, or "" when absent.
func (r RowResponse) CauseText() string {
	if r.Cause == nil {
		return ""
	}
	return *r.Cause
}

// Passphrase is the opaque string returned by the remote validator.
type Passphrase string

func (p Passphrase) String() string {
	return string(p)
}
