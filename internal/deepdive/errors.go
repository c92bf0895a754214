package deepdive

import "fmt"

// ValidationError reports malformed input (perspective, date range, filter
// clause). It is raised before any warehouse query runs.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// DataSourceError wraps a warehouse failure. The caller owns retry policy;
// the engine never retries on its own.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("warehouse %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }
