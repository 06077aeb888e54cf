// Package database handles the in memory block sequence owned by a miner and
// the rules for extending it.
package database

import (
	"errors"
	"fmt"
	"sync"
)

// Set of consensus failure kinds.
var (
	ErrIndexMismatch    = errors.New("block index is not next")
	ErrPrevHashMismatch = errors.New("previous hash does not match parent")
	ErrHashMismatch     = errors.New("hash does not match block fields")
	ErrNotSolved        = errors.New("hash does not satisfy difficulty")
	ErrDuplicateBlock   = errors.New("block already accepted")
	ErrLosingFork       = errors.New("competing block has the higher hash")
)

// ConsensusError is returned when a block can't extend the chain. The block is
// discarded and the node keeps running.
type ConsensusError struct {
	Index  uint32
	Kind   error
	Detail string
}

// Error implements the error interface.
func (e *ConsensusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("consensus: blk[%d]: %s", e.Index, e.Kind)
	}
	return fmt.Sprintf("consensus: blk[%d]: %s: %s", e.Index, e.Kind, e.Detail)
}

// Unwrap returns the failure kind so errors.Is works against the kinds.
func (e *ConsensusError) Unwrap() error {
	return e.Kind
}

// IsConsensusError checks if an error of type ConsensusError exists.
func IsConsensusError(err error) bool {
	var ce *ConsensusError
	return errors.As(err, &ce)
}

// =============================================================================

// Database manages the chain of accepted blocks and an index of the
// transactions they seal.
type Database struct {
	mu         sync.RWMutex
	difficulty uint
	blocks     []Block
	sealed     map[string]int
	evHandler  func(v string, args ...any)
}

// New constructs an empty chain validated against the specified difficulty.
func New(difficulty uint, evHandler func(v string, args ...any)) *Database {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	return &Database{
		difficulty: difficulty,
		sealed:     make(map[string]int),
		evHandler:  evHandler,
	}
}

// Difficulty returns the number of leading zeros a block hash needs.
func (db *Database) Difficulty() uint {
	return db.difficulty
}

// Append adds the block to the chain only if it extends the current tip by
// exactly one.
func (db *Database) Append(b Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.append(b)
}

// Accept applies a block received from the network. A block extending the
// tip is appended. A block competing with the tip for the same index, linked
// to the same parent, replaces the tip when its hash is lower and the dropped
// tip is returned so its transactions can be pooled again.
func (db *Database) Accept(b Block) (*Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	n := len(db.blocks)
	if n == 0 || b.Index != uint32(n-1) {
		return nil, db.append(b)
	}

	tip := db.blocks[n-1]
	if b.Hash == tip.Hash {
		return nil, &ConsensusError{Index: b.Index, Kind: ErrDuplicateBlock}
	}

	if err := b.ValidateBlock(tip.PrevHash, tip.Index, db.difficulty, db.evHandler); err != nil {
		return nil, err
	}

	if b.Hash >= tip.Hash {
		return nil, &ConsensusError{Index: b.Index, Kind: ErrLosingFork, Detail: fmt.Sprintf("got %s, tip %s", b.Hash, tip.Hash)}
	}

	db.evHandler("database: Accept: replace tip: blk[%d]: old[%s]: new[%s]", b.Index, tip.Hash, b.Hash)

	db.unseal(tip)
	db.blocks[n-1] = b
	db.seal(b)

	return &tip, nil
}

// LatestBlock returns the chain tip, if any.
func (db *Database) LatestBlock() (Block, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if len(db.blocks) == 0 {
		return Block{}, false
	}
	return db.blocks[len(db.blocks)-1], true
}

// Length returns the number of blocks in the chain.
func (db *Database) Length() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.blocks)
}

// NextIndex returns the index the next block must carry.
func (db *Database) NextIndex() uint32 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint32(len(db.blocks))
}

// TipHash returns the hash the next block must link to.
func (db *Database) TipHash() string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.tipHash()
}

// Copy returns the chain in ascending index order.
func (db *Database) Copy() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blocks := make([]Block, len(db.blocks))
	copy(blocks, db.blocks)
	return blocks
}

// ContainsTransaction reports whether the transaction is sealed in the chain.
func (db *Database) ContainsTransaction(tx string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.sealed[tx] > 0
}

// =============================================================================

func (db *Database) append(b Block) error {
	if err := b.ValidateBlock(db.tipHash(), uint32(len(db.blocks)), db.difficulty, db.evHandler); err != nil {
		return err
	}

	db.blocks = append(db.blocks, b)
	db.seal(b)

	return nil
}

func (db *Database) tipHash() string {
	if len(db.blocks) == 0 {
		return GenesisHash
	}
	return db.blocks[len(db.blocks)-1].Hash
}

func (db *Database) seal(b Block) {
	for _, tx := range b.Transactions() {
		db.sealed[tx]++
	}
}

func (db *Database) unseal(b Block) {
	for _, tx := range b.Transactions() {
		if db.sealed[tx]--; db.sealed[tx] <= 0 {
			delete(db.sealed, tx)
		}
	}
}
