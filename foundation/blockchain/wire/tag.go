// Package wire implements the frame format miners and wallets use to talk to
// each other, along with the transport used to move frames between nodes.
package wire

import "fmt"

// Tag identifies the kind of message carried by a frame. The numbering is
// part of the protocol and must not be reordered.
type Tag uint8

// Set of tags known to the protocol.
const (
	TagOk Tag = iota
	TagConnect
	TagDisconnect
	TagRequireID
	TagGiveID
	TagBroadcastConnect
	TagBroadcastDisconnect
	TagCheck
	TagAck
	TagBlock
	TagTransaction
	TagMineTransaction
	TagOkMineTransaction
	TagRequireWalletID
	TagRequireBlockchain
	TagSendBlockchain

	tagCount
)

var tagNames = [...]string{
	TagOk:                  "Ok",
	TagConnect:             "Connect",
	TagDisconnect:          "Disconnect",
	TagRequireID:           "RequireID",
	TagGiveID:              "GiveID",
	TagBroadcastConnect:    "BroadcastConnect",
	TagBroadcastDisconnect: "BroadcastDisconnect",
	TagCheck:               "Check",
	TagAck:                 "Ack",
	TagBlock:               "Block",
	TagTransaction:         "Transaction",
	TagMineTransaction:     "MineTransaction",
	TagOkMineTransaction:   "OkMineTransaction",
	TagRequireWalletID:     "RequireWalletID",
	TagRequireBlockchain:   "RequireBlockchain",
	TagSendBlockchain:      "SendBlockchain",
}

// ParseTag converts a raw tag byte into a Tag.
func ParseTag(b byte) (Tag, error) {
	if b >= byte(tagCount) {
		return 0, &ProtocolError{Op: "parse tag", Kind: ErrUnknownTag, Detail: fmt.Sprintf("value %d", b)}
	}

	return Tag(b), nil
}

// Valid reports whether the tag is one the protocol defines.
func (t Tag) Valid() bool {
	return t < tagCount
}

// String implements the fmt.Stringer interface.
func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}

	return tagNames[t]
}
