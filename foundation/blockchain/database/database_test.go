package database_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func noop(string, ...any) {}

func mine(t *testing.T, db *database.Database, txs ...string) database.Block {
	t.Helper()

	b, err := database.POW(context.Background(), db.Difficulty(), db.NextIndex(), db.TipHash(), txs, noop)
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	return b
}

// =============================================================================

func Test_HashChain(t *testing.T) {
	const difficulty = 2

	t.Log("Given the need to mine a sequence of blocks.")
	{
		db := database.New(difficulty, noop)

		for i := 0; i < 4; i++ {
			txs := []string{"tx" + strconv.Itoa(i) + "a", "tx" + strconv.Itoa(i) + "b"}
			if err := db.Append(mine(t, db, txs...)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to append block %d: %v", failed, i, err)
			}
		}
		t.Logf("\t%s\tTest 0:\tShould be able to append 4 mined blocks.", success)

		blocks := db.Copy()

		t.Logf("\tTest 0:\tWhen checking the resulting chain.")
		{
			if blocks[0].PrevHash != database.GenesisHash {
				t.Fatalf("\t%s\tTest 0:\tShould link the first block to the genesis seed.", failed)
			}
			sum := sha256.Sum256([]byte("first_block"))
			if database.GenesisHash != hex.EncodeToString(sum[:]) {
				t.Fatalf("\t%s\tTest 0:\tShould derive the genesis hash from the seed.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould link the first block to the genesis seed.", success)

			for i, b := range blocks {
				if b.Index != uint32(i) {
					t.Fatalf("\t%s\tTest 0:\tShould carry index %d: got %d", failed, i, b.Index)
				}
				if i > 0 && b.PrevHash != blocks[i-1].Hash {
					t.Fatalf("\t%s\tTest 0:\tShould link block %d to its parent.", failed, i)
				}
				if !strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty)) {
					t.Fatalf("\t%s\tTest 0:\tShould satisfy the difficulty: %s", failed, b.Hash)
				}

				text := strconv.FormatUint(uint64(b.Index), 10) + b.Payload + strconv.FormatUint(b.TimeStamp, 10) + strconv.FormatUint(b.Nonce, 10) + b.PrevHash
				sum := sha256.Sum256([]byte(text))
				if b.Hash != hex.EncodeToString(sum[:]) {
					t.Fatalf("\t%s\tTest 0:\tShould hash the concatenated fields for block %d.", failed, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould link, solve and hash every block.", success)

			if err := database.ValidateChain(blocks, difficulty); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the chain.", success)

			if !db.ContainsTransaction("tx2a") || db.ContainsTransaction("tx9a") {
				t.Fatalf("\t%s\tTest 0:\tShould index the sealed transactions.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould index the sealed transactions.", success)
		}
	}
}

func Test_AppendRule(t *testing.T) {
	db := database.New(1, noop)
	first := mine(t, db, "a", "b")
	if err := db.Append(first); err != nil {
		t.Fatalf("append: %v", err)
	}

	future := first
	future.Index = 5
	future.Hash = future.CalculateHash()

	tampered := mine(t, db, "c")
	tampered.Payload = "d"

	unlinked := mine(t, db, "e")
	unlinked.PrevHash = database.GenesisHash
	unlinked.Hash = unlinked.CalculateHash()

	tt := []struct {
		name  string
		block database.Block
		kind  error
	}{
		{"future-index", future, database.ErrIndexMismatch},
		{"stale-index", first, database.ErrIndexMismatch},
		{"tampered", tampered, database.ErrHashMismatch},
		{"unlinked", unlinked, database.ErrPrevHashMismatch},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			err := db.Append(tst.block)
			if !errors.Is(err, tst.kind) {
				t.Fatalf("got %v, exp %v", err, tst.kind)
			}
			if !database.IsConsensusError(err) {
				t.Fatalf("expected a consensus error, got %T", err)
			}
			if db.Length() != 1 {
				t.Fatalf("chain changed: length %d", db.Length())
			}
		})
	}
}

func Test_NotSolved(t *testing.T) {
	db := database.New(64, noop)

	b := database.Block{Index: 0, Payload: "x", TimeStamp: 1, PrevHash: database.GenesisHash}
	b.Hash = b.CalculateHash()

	if err := db.Append(b); !errors.Is(err, database.ErrNotSolved) {
		t.Fatalf("got %v, exp %v", err, database.ErrNotSolved)
	}
}

func Test_TieBreak(t *testing.T) {
	seed := database.New(1, noop)
	a := mine(t, seed, "pay ann", "pay bob")
	b := mine(t, seed, "pay bob", "pay joe")
	for a.Hash == b.Hash {
		b = mine(t, seed, "pay bob", "pay joe", "pay sue")
	}

	winner, loser := a, b
	if b.Hash < a.Hash {
		winner, loser = b, a
	}

	t.Log("Given the need to resolve two blocks for the same index.")
	{
		orders := [][]database.Block{{a, b}, {b, a}}
		for testID, order := range orders {
			t.Logf("\tTest %d:\tWhen blocks arrive as %s then %s.", testID, order[0].Hash[:8], order[1].Hash[:8])
			{
				db := database.New(1, noop)

				if _, err := db.Accept(order[0]); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould accept the first block: %v", failed, testID, err)
				}

				dropped, err := db.Accept(order[1])
				switch order[1].Hash == winner.Hash {
				case true:
					if err != nil || dropped == nil || dropped.Hash != loser.Hash {
						t.Fatalf("\t%s\tTest %d:\tShould replace the tip: %v", failed, testID, err)
					}
				default:
					if !errors.Is(err, database.ErrLosingFork) {
						t.Fatalf("\t%s\tTest %d:\tShould reject the higher hash: %v", failed, testID, err)
					}
				}

				tip, _ := db.LatestBlock()
				if tip.Hash != winner.Hash || db.Length() != 1 {
					t.Fatalf("\t%s\tTest %d:\tShould converge on the lower hash.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould converge on the lower hash.", success, testID)

				if _, err := db.Accept(winner); !errors.Is(err, database.ErrDuplicateBlock) {
					t.Fatalf("\t%s\tTest %d:\tShould report the duplicate: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould report the duplicate.", success, testID)

				if db.ContainsTransaction("pay ann") != (winner.Hash == a.Hash) {
					t.Fatalf("\t%s\tTest %d:\tShould only index the winner's transactions.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould only index the winner's transactions.", success, testID)
			}
		}
	}
}

func Test_POWCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Nothing solves 64 leading zeros so only the context ends the search.
	_, err := database.POW(ctx, 64, 0, database.GenesisHash, []string{"x"}, noop)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, exp %v", err, context.DeadlineExceeded)
	}
}

func Test_BlockJSON(t *testing.T) {
	db := database.New(1, noop)
	b := mine(t, db, "a", "b", "c")

	s, err := b.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := database.ParseBlock(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != b {
		t.Fatalf("got %+v, exp %+v", got, b)
	}

	txs := got.Transactions()
	if len(txs) != 3 || txs[2] != "c" {
		t.Fatalf("transactions: %v", txs)
	}

	if _, err := database.ParseBlock("{not json"); err == nil {
		t.Fatal("expected a parse error")
	}
}
