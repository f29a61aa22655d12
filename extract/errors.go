package extract

import "fmt"

// UnsupportedMessageTypeError is returned when a requested candidate carries a message
// type that has no decoder. Nothing is written for the frame it was found in.
type UnsupportedMessageTypeError struct {
	CandidateID int
	MsgType     string
}

func (e *UnsupportedMessageTypeError) Error() string {
	return fmt.Sprintf("candidate %d: unsupported message type %q", e.CandidateID, e.MsgType)
}

// StreamingError is returned when the bag can't be read to the end.
type StreamingError struct {
	Err error
}

func (e *StreamingError) Error() string {
	return "failed to read bag: " + e.Err.Error()
}

func (e *StreamingError) Unwrap() error {
	return e.Err
}

// UpstreamError is returned when the candidates can't be resolved.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "failed to resolve candidates: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
