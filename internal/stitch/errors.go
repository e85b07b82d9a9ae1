package stitch

import "fmt"

// ValidationError reports a stitch request that can never succeed as given.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IOError reports a segment that could not be fetched or stored locally.
type IOError struct {
	Index int
	URL   string
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("stitch: fetch segment %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
