// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkle tree used by wallets
// to prove a transaction is part of a miner's ledger.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNotFound is returned when a proof is requested for data the tree does
// not hold.
var ErrNotFound = errors.New("unable to find data in tree")

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	Root         *Node[T]
	Leafs        []*Node[T]
	MerkleRoot   []byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. An odd leaf is paired with a copy of itself.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return errors.New("cannot construct tree with no content")
	}

	leafs := make([]*Node[T], 0, len(values)+1)
	for _, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}

		leafs = append(leafs, &Node[T]{
			Hash:  hash,
			Value: value,
			leaf:  true,
			Tree:  t,
		})
	}

	if len(leafs)%2 == 1 {
		last := leafs[len(leafs)-1]
		leafs = append(leafs, &Node[T]{
			Hash:  last.Hash,
			Value: last.Value,
			leaf:  true,
			dup:   true,
			Tree:  t,
		})
	}

	root, err := buildIntermediate(leafs, t)
	if err != nil {
		return err
	}

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return nil
}

// Proof returns the sibling hashes on the path from the data to the root and
// the order of concatenating them. An order of 0 means the sibling comes
// first, an order of 1 means it comes second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	for _, node := range t.Leafs {
		if node.Value.Equals(data) {
			proof, order := node.path()
			return proof, order, nil
		}
	}

	return nil, nil, ErrNotFound
}

// ProofHash returns the proof for the leaf carrying the specified hash.
func (t *Tree[T]) ProofHash(leafHash []byte) ([][]byte, []int64, error) {
	for _, node := range t.Leafs {
		if bytes.Equal(node.Hash, leafHash) {
			proof, order := node.path()
			return proof, order, nil
		}
	}

	return nil, nil, ErrNotFound
}

// VerifyProof folds the leaf hash with the proof using the tree's hash
// strategy and compares the result to the tree's root.
func (t *Tree[T]) VerifyProof(leafHash []byte, proof [][]byte, order []int64) bool {
	return verifyProof(t.hashStrategy, t.MerkleRoot, leafHash, proof, order)
}

// Verify recalculates the hashes at each level of the tree and checks the
// result against the stored root.
func (t *Tree[T]) Verify() error {
	calculatedMerkleRoot, err := t.Root.verify()
	if err != nil {
		return err
	}

	if !bytes.Equal(t.MerkleRoot, calculatedMerkleRoot) {
		return errors.New("root hash invalid")
	}

	return nil
}

// Values returns the values stored in the tree without the padding copy.
func (t *Tree[T]) Values() []T {
	values := make([]T, 0, len(t.Leafs))
	for _, node := range t.Leafs {
		if !node.dup {
			values = append(values, node.Value)
		}
	}

	return values
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// =============================================================================

// VerifyProof folds the leaf hash with the proof using sha256 and reports
// whether the result equals root.
func VerifyProof(root []byte, leafHash []byte, proof [][]byte, order []int64) bool {
	return verifyProof(sha256.New, root, leafHash, proof, order)
}

func verifyProof(hashStrategy func() hash.Hash, root []byte, leafHash []byte, proof [][]byte, order []int64) bool {
	if len(proof) != len(order) || len(root) == 0 {
		return false
	}

	current := leafHash
	for i, sibling := range proof {
		h := hashStrategy()

		switch order[i] {
		case 0:
			h.Write(sibling)
			h.Write(current)
		case 1:
			h.Write(current)
			h.Write(sibling)
		default:
			return false
		}

		current = h.Sum(nil)
	}

	return bytes.Equal(current, root)
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to its
// immediate relationships, a hash, the data if it is a leaf, and other metadata.
type Node[T Hashable[T]] struct {
	Tree   *Tree[T]
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   []byte
	Value  T
	leaf   bool
	dup    bool
}

// path walks from the node to the root collecting the sibling hashes.
func (n *Node[T]) path() ([][]byte, []int64) {
	var proof [][]byte
	var order []int64

	node := n
	for parent := node.Parent; parent != nil; parent = parent.Parent {
		if parent.Left == node {
			proof = append(proof, parent.Right.Hash)
			order = append(order, 1)
		} else {
			proof = append(proof, parent.Left.Hash)
			order = append(order, 0)
		}
		node = parent
	}

	return proof, order
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node[T]) verify() ([]byte, error) {
	if n.leaf {
		return n.Value.Hash()
	}

	rightBytes, err := n.Right.verify()
	if err != nil {
		return nil, err
	}

	leftBytes, err := n.Left.verify()
	if err != nil {
		return nil, err
	}

	return sum(n.Tree.hashStrategy, leftBytes, rightBytes)
}

// =============================================================================

// buildIntermediate is a helper function that for a given list of leaf nodes,
// constructs the intermediate and root levels of the tree. Returns the resulting
// root node of the tree.
func buildIntermediate[T Hashable[T]](nl []*Node[T], t *Tree[T]) (*Node[T], error) {
	var nodes []*Node[T]

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if i+1 == len(nl) {
			right = i
		}

		h, err := sum(t.hashStrategy, nl[left].Hash, nl[right].Hash)
		if err != nil {
			return nil, err
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  h,
			Tree:  t,
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n

		if len(nl) == 2 {
			return &n, nil
		}
	}

	return buildIntermediate(nodes, t)
}

func sum(hashStrategy func() hash.Hash, left []byte, right []byte) ([]byte, error) {
	h := hashStrategy()

	data := make([]byte, 0, len(left)+len(right))
	data = append(data, left...)
	data = append(data, right...)

	if _, err := h.Write(data); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}
