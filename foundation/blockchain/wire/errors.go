package wire

import (
	"errors"
	"fmt"
	"strconv"
)

// Set of protocol failure kinds. A ProtocolError always carries one of these
// so callers can use errors.Is to tell them apart.
var (
	ErrTruncated      = errors.New("truncated frame")
	ErrInvalidUTF8    = errors.New("invalid utf-8")
	ErrUnknownTag     = errors.New("unknown tag")
	ErrSentinel       = errors.New("padding sentinel inside field")
	ErrInvalidID      = errors.New("invalid id field")
	ErrFieldTooLong   = errors.New("field exceeds fixed width")
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnexpectedTag  = errors.New("unexpected reply tag")
)

// ProtocolError is returned when a frame is malformed or cannot be produced.
// The connection carrying a malformed frame is dropped, the node continues.
type ProtocolError struct {
	Op     string
	Kind   error
	Detail string
}

// Error implements the error interface.
func (pe *ProtocolError) Error() string {
	if pe.Detail == "" {
		return fmt.Sprintf("wire: %s: %s", pe.Op, pe.Kind)
	}
	return fmt.Sprintf("wire: %s: %s: %s", pe.Op, pe.Kind, pe.Detail)
}

// Unwrap exposes the failure kind to errors.Is.
func (pe *ProtocolError) Unwrap() error {
	return pe.Kind
}

// IsProtocolError checks if an error of type ProtocolError exists.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// NewPayloadError reports a payload the handler for tag could not parse.
func NewPayloadError(tag Tag, err error) error {
	return &ProtocolError{Op: "payload " + tag.String(), Kind: ErrInvalidPayload, Detail: err.Error()}
}

// ExpectTag checks a reply carries the tag the request asked for.
func ExpectTag(reply Message, tag Tag) error {
	if reply.Tag != tag {
		return &ProtocolError{Op: "reply", Kind: ErrUnexpectedTag, Detail: fmt.Sprintf("got %s, exp %s", reply.Tag, tag)}
	}
	return nil
}

// ParseGiveID reads the id handed out in a GiveID reply.
func ParseGiveID(reply Message) (uint32, error) {
	if err := ExpectTag(reply, TagGiveID); err != nil {
		return 0, err
	}

	id, err := strconv.ParseUint(reply.Payload, 10, 32)
	if err != nil {
		return 0, NewPayloadError(reply.Tag, err)
	}

	return uint32(id), nil
}

// =============================================================================

// TransportError is returned when connecting to, writing to, or reading from
// a node fails. These are recovered locally and logged.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

// Error implements the error interface.
func (te *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %s", te.Op, te.Addr, te.Err)
}

// Unwrap returns the underlying network error.
func (te *TransportError) Unwrap() error {
	return te.Err
}

// IsTransportError checks if an error of type TransportError exists.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
