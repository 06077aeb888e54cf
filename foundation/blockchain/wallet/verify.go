package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/merkle"
)

// digest is a merkle leaf that already is a sha256 hash.
type digest []byte

// Hash implements the merkle Hashable interface.
func (d digest) Hash() ([]byte, error) {
	return d, nil
}

// Equals implements the merkle Hashable interface.
func (d digest) Equals(other digest) bool {
	return bytes.Equal(d, other)
}

// =============================================================================

// HashTransaction returns the leaf hash of a transaction.
func HashTransaction(tx string) []byte {
	h := sha256.Sum256([]byte(tx))
	return h[:]
}

// LedgerHashes returns the leaves of the ledger in chain order: the hash of
// every block followed by the hashes of the transactions it seals.
func LedgerHashes(blocks []database.Block) [][]byte {
	var hashes [][]byte
	for _, block := range blocks {
		h, err := hex.DecodeString(block.Hash)
		if err != nil {
			h = HashTransaction(block.Hash)
		}
		hashes = append(hashes, h)

		for _, tx := range block.Transactions() {
			hashes = append(hashes, HashTransaction(tx))
		}
	}

	return hashes
}

// VerifyInclusion builds a merkle tree over the hashes and reports whether
// the proof for leaf validates against the tree's root. A leaf that is not
// in the tree reports false.
func VerifyInclusion(hashes [][]byte, leaf []byte) (bool, error) {
	if len(hashes) == 0 {
		return false, nil
	}

	tree, err := newTree(hashes)
	if err != nil {
		return false, err
	}

	proof, order, err := tree.ProofHash(leaf)
	if err != nil {
		if errors.Is(err, merkle.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return merkle.VerifyProof(tree.MerkleRoot, leaf, proof, order), nil
}

// VerifyTransaction reports whether tx is sealed in the chain.
func VerifyTransaction(blocks []database.Block, tx string) (bool, error) {
	return VerifyInclusion(LedgerHashes(blocks), HashTransaction(tx))
}

// LedgerRoot returns the hex encoded merkle root of the chain's leaves. An
// empty chain has no root.
func LedgerRoot(blocks []database.Block) (string, error) {
	hashes := LedgerHashes(blocks)
	if len(hashes) == 0 {
		return "", nil
	}

	tree, err := newTree(hashes)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

func newTree(hashes [][]byte) (*merkle.Tree[digest], error) {
	leaves := make([]digest, len(hashes))
	for i, h := range hashes {
		leaves[i] = digest(h)
	}

	return merkle.NewTree(leaves)
}
