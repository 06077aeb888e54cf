package wire_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

func Test_FrameStream(t *testing.T) {
	msgs := []wire.Message{
		wire.NewMessage(wire.TagSendBlockchain, "127.0.0.1:4000", 0, `{"index":0}`),
		wire.NewMessage(wire.TagSendBlockchain, "127.0.0.1:4000", 0, `{"index":1}`),
		wire.NewMessage(wire.TagSendBlockchain, "127.0.0.1:4000", 0, ""),
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		if err := wire.WriteMessage(&buf, m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	for i, exp := range msgs {
		got, err := wire.ReadMessage(&buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got != exp {
			t.Fatalf("frame %d: got %+v, exp %+v", i, got, exp)
		}
	}

	if _, err := wire.ReadMessage(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after the last frame, got %v", err)
	}
}

func Test_FrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, wire.NewMessage(wire.TagAck, "127.0.0.1:4000", 1, "")); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw := buf.Bytes()

	tt := []struct {
		name string
		data []byte
	}{
		{"partial-length", raw[:2]},
		{"partial-body", raw[:len(raw)-3]},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			_, err := wire.ReadMessage(bytes.NewReader(tst.data))
			if !errors.Is(err, wire.ErrTruncated) {
				t.Fatalf("got %v, exp %v", err, wire.ErrTruncated)
			}
		})
	}
}

func Test_FrameTooLarge(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], wire.MaxFrameSize+1)

	_, err := wire.ReadMessage(bytes.NewReader(hdr[:]))
	if !errors.Is(err, wire.ErrFrameTooLarge) {
		t.Fatalf("got %v, exp %v", err, wire.ErrFrameTooLarge)
	}
}
