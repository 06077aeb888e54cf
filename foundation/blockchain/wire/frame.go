package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest frame accepted off the wire. A full chain is
// streamed one block per frame so this only has to cover a single block.
const MaxFrameSize = 4 << 20

// lengthSize is the size of the big-endian length that precedes each frame.
const lengthSize = 4

// WriteMessage encodes the message and writes it as one length-prefixed
// frame.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}

	if len(frame) > MaxFrameSize {
		return &ProtocolError{Op: "write", Kind: ErrFrameTooLarge, Detail: fmt.Sprintf("%d bytes", len(frame))}
	}

	buf := make([]byte, lengthSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[lengthSize:], frame)

	if _, err := w.Write(buf); err != nil {
		return err
	}

	return nil
}

// ReadMessage reads one length-prefixed frame and decodes it. A clean close
// before any byte of the next frame is reported as io.EOF.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [lengthSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, &ProtocolError{Op: "read", Kind: ErrTruncated, Detail: "length prefix"}
		}
		return Message{}, err
	}

	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return Message{}, &ProtocolError{Op: "read", Kind: ErrFrameTooLarge, Detail: fmt.Sprintf("%d bytes", size)}
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, &ProtocolError{Op: "read", Kind: ErrTruncated, Detail: fmt.Sprintf("frame of %d bytes", size)}
		}
		return Message{}, err
	}

	return Decode(frame)
}
