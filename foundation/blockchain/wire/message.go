package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Fixed widths and padding characters of the frame header. Neither sentinel
// can appear in a host:port address or a decimal id.
const (
	AddressSize = 21
	IDSize      = 10
	HeaderSize  = 1 + AddressSize + IDSize

	addressPad = '*'
	idPad      = '#'
)

// Message is the decoded form of a frame.
type Message struct {
	Tag      Tag
	Sender   string
	SenderID uint32
	Payload  string
}

// NewMessage constructs a message from the specified sender.
func NewMessage(tag Tag, sender string, senderID uint32, payload string) Message {
	return Message{
		Tag:      tag,
		Sender:   sender,
		SenderID: senderID,
		Payload:  payload,
	}
}

// String implements the fmt.Stringer interface.
func (m Message) String() string {
	return fmt.Sprintf("%s from %d@%s [%d bytes]", m.Tag, m.SenderID, m.Sender, len(m.Payload))
}

// Encode produces the frame bytes for the message. Messages built locally are
// expected to be valid, an error here is a programming mistake.
func Encode(m Message) ([]byte, error) {
	const op = "encode"

	if !m.Tag.Valid() {
		return nil, &ProtocolError{Op: op, Kind: ErrUnknownTag, Detail: m.Tag.String()}
	}

	if len(m.Sender) > AddressSize {
		return nil, &ProtocolError{Op: op, Kind: ErrFieldTooLong, Detail: fmt.Sprintf("address %q", m.Sender)}
	}

	if strings.ContainsAny(m.Sender, string([]rune{addressPad, idPad, 0})) {
		return nil, &ProtocolError{Op: op, Kind: ErrSentinel, Detail: fmt.Sprintf("address %q", m.Sender)}
	}

	if !utf8.ValidString(m.Sender) || !utf8.ValidString(m.Payload) {
		return nil, &ProtocolError{Op: op, Kind: ErrInvalidUTF8}
	}

	// Decode strips trailing zero bytes, they would not survive the trip.
	if strings.HasSuffix(m.Payload, "\x00") {
		return nil, &ProtocolError{Op: op, Kind: ErrInvalidPayload, Detail: "trailing zero byte"}
	}

	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = append(buf, byte(m.Tag))
	buf = append(buf, pad(m.Sender, AddressSize, addressPad)...)
	buf = append(buf, pad(strconv.FormatUint(uint64(m.SenderID), 10), IDSize, idPad)...)
	buf = append(buf, m.Payload...)

	return buf, nil
}

// Decode parses frame bytes received from the network. Any malformed input
// results in a ProtocolError, never a panic.
func Decode(frame []byte) (Message, error) {
	const op = "decode"

	if len(frame) < HeaderSize {
		return Message{}, &ProtocolError{Op: op, Kind: ErrTruncated, Detail: fmt.Sprintf("got %d bytes, need %d", len(frame), HeaderSize)}
	}

	tag, err := ParseTag(frame[0])
	if err != nil {
		return Message{}, err
	}

	addrField := frame[1 : 1+AddressSize]
	idField := frame[1+AddressSize : HeaderSize]
	payload := bytes.TrimRight(frame[HeaderSize:], "\x00")

	if !utf8.Valid(addrField) || !utf8.Valid(idField) || !utf8.Valid(payload) {
		return Message{}, &ProtocolError{Op: op, Kind: ErrInvalidUTF8}
	}

	sender, err := unpad(string(addrField), addressPad)
	if err != nil {
		return Message{}, &ProtocolError{Op: op, Kind: ErrSentinel, Detail: "address field"}
	}
	if strings.ContainsRune(sender, idPad) {
		return Message{}, &ProtocolError{Op: op, Kind: ErrSentinel, Detail: "address field"}
	}

	idText, err := unpad(string(idField), idPad)
	if err != nil {
		return Message{}, &ProtocolError{Op: op, Kind: ErrSentinel, Detail: "id field"}
	}

	var id uint64
	if idText != "" {
		id, err = strconv.ParseUint(idText, 10, 32)
		if err != nil {
			return Message{}, &ProtocolError{Op: op, Kind: ErrInvalidID, Detail: fmt.Sprintf("%q", idText)}
		}
	}

	m := Message{
		Tag:      tag,
		Sender:   sender,
		SenderID: uint32(id),
		Payload:  string(payload),
	}

	return m, nil
}

// =============================================================================

// pad right-pads s with the padding character up to width bytes.
func pad(s string, width int, padding byte) []byte {
	b := make([]byte, width)
	n := copy(b, s)
	for i := n; i < width; i++ {
		b[i] = padding
	}
	return b
}

// unpad strips the trailing padding from a fixed-width field. Padding that
// shows up before the end of the content means the field is corrupt.
func unpad(field string, padding rune) (string, error) {
	content := strings.TrimRight(field, string(padding)+"\x00")
	if strings.ContainsRune(content, padding) || strings.ContainsRune(content, 0) {
		return "", ErrSentinel
	}
	return content, nil
}
