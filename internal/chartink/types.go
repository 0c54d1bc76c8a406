package chartink

import (
	"fmt"
	"strconv"
	"time"
)

// Row is one matching scan row, mapping column name to value. Chartink
// returns a mix of strings and numbers per column.
type Row map[string]any

// String returns the value for key rendered as a string.
func (r Row) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Float returns the value for key as a float64, or 0 when absent or
// unparseable.
func (r Row) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ScanResult is the ordered set of rows matching a scan clause. An empty
// Rows slice is a valid "no matches" result, distinct from a fetch failure.
type ScanResult struct {
	Rows      []Row
	FetchedAt time.Time
}

func (r ScanResult) Empty() bool {
	return len(r.Rows) == 0
}

// NetworkError is a transient transport or HTTP-status failure; retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("chartink %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MalformedResponse means the endpoint answered but the payload could not be
// understood. Retryable like a network error, but logged distinctly.
type MalformedResponse struct {
	Reason string
	Err    error
}

func (e *MalformedResponse) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chartink malformed response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("chartink malformed response: %s", e.Reason)
}

func (e *MalformedResponse) Unwrap() error {
	return e.Err
}
