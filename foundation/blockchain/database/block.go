package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Separator joins the pooled transactions into a block payload.
const Separator = "$"

// ErrSeparatorInTransaction is returned for a transaction that would split
// into several once sealed in a block payload.
var ErrSeparatorInTransaction = errors.New("transaction contains the payload separator " + Separator)

// ValidateTransaction checks a transaction can be sealed and split back out
// of a block payload unchanged.
func ValidateTransaction(tx string) error {
	if strings.Contains(tx, Separator) {
		return ErrSeparatorInTransaction
	}

	return nil
}

// GenesisSeed is hashed to produce the previous hash of the first block.
const GenesisSeed = "first_block"

// GenesisHash is the previous hash every chain starts from.
var GenesisHash = hashHex(GenesisSeed)

// =============================================================================

// Block represents a group of transactions batched together.
type Block struct {
	Index     uint32 `json:"index"`
	Payload   string `json:"payload"`
	TimeStamp uint64 `json:"timestamp"` // Milliseconds since the epoch.
	Nonce     uint64 `json:"nonce"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
}

// NewPayload joins the transactions into the text a block seals.
func NewPayload(txs []string) string {
	return strings.Join(txs, Separator)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, difficulty uint, index uint32, prevHash string, txs []string, evHandler func(v string, args ...any)) (Block, error) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	nb := Block{
		Index:     index,
		Payload:   NewPayload(txs),
		TimeStamp: uint64(time.Now().UTC().UnixMilli()),
		Nonce:     0, // Will be identified by the POW algorithm.
		PrevHash:  prevHash,
	}

	if err := nb.performPOW(ctx, difficulty, evHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, difficulty uint, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started: blk[%d]", b.Index)
	defer ev("database: PerformPOW: MINING: completed: blk[%d]", b.Index)

	for _, tx := range b.Transactions() {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		// Did another node find the block while we were working.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		hash := b.CalculateHash()
		if !isHashSolved(difficulty, hash) {
			b.Nonce++
			continue
		}

		b.Hash = hash

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.PrevHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// CalculateHash returns the hex encoded sha256 of the block fields in the
// order index, payload, timestamp, nonce, previous hash.
func (b Block) CalculateHash() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(uint64(b.Index), 10))
	sb.WriteString(b.Payload)
	sb.WriteString(strconv.FormatUint(b.TimeStamp, 10))
	sb.WriteString(strconv.FormatUint(b.Nonce, 10))
	sb.WriteString(b.PrevHash)

	return hashHex(sb.String())
}

// Transactions splits the payload back into the sealed transactions.
func (b Block) Transactions() []string {
	if b.Payload == "" {
		return nil
	}
	return strings.Split(b.Payload, Separator)
}

// ValidateBlock takes a block and validates it to be the block at nextIndex
// linked to prevHash.
func (b Block) ValidateBlock(prevHash string, nextIndex uint32, difficulty uint, evHandler func(v string, args ...any)) error {
	evHandler("database: ValidateBlock: validate: blk[%d]: check: block index is the next index", b.Index)

	if b.Index != nextIndex {
		return &ConsensusError{Index: b.Index, Kind: ErrIndexMismatch, Detail: fmt.Sprintf("got %d, exp %d", b.Index, nextIndex)}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Index)

	if b.PrevHash != prevHash {
		return &ConsensusError{Index: b.Index, Kind: ErrPrevHashMismatch, Detail: fmt.Sprintf("got %s, exp %s", b.PrevHash, prevHash)}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash matches block fields", b.Index)

	if hash := b.CalculateHash(); b.Hash != hash {
		return &ConsensusError{Index: b.Index, Kind: ErrHashMismatch, Detail: fmt.Sprintf("got %s, exp %s", b.Hash, hash)}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Index)

	if !isHashSolved(difficulty, b.Hash) {
		return &ConsensusError{Index: b.Index, Kind: ErrNotSolved, Detail: b.Hash}
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk[%d]: hash[%s]: prev[%s]: nonce[%d]: txs[%d]", b.Index, b.Hash, b.PrevHash, b.Nonce, len(b.Transactions()))
}

// Marshal renders the block as the JSON text carried in a frame payload.
func (b Block) Marshal() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseBlock converts the JSON text carried in a frame payload into a block.
func ParseBlock(s string) (Block, error) {
	var b Block
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return Block{}, fmt.Errorf("parse block: %w", err)
	}
	return b, nil
}

// =============================================================================

// ValidateChain checks every block links to its parent, starting from the
// genesis hash, and carries a solved hash.
func ValidateChain(blocks []Block, difficulty uint) error {
	noop := func(string, ...any) {}

	prevHash := GenesisHash
	for i, b := range blocks {
		if err := b.ValidateBlock(prevHash, uint32(i), difficulty, noop); err != nil {
			return err
		}
		prevHash = b.Hash
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint, hash string) bool {
	if len(hash) != sha256.Size*2 || difficulty > uint(len(hash)) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
