// Package wallet implements a wallet bound to one miner. A wallet submits
// transactions to its miner, fetches the ledger and proves that a
// transaction was sealed using a merkle proof.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ardanlabs/meshchain/foundation/blockchain/database"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// Set of errors returned by HandleCommand.
var (
	ErrExit           = errors.New("exit requested")
	ErrUnknownCommand = errors.New("unknown command")
)

// ErrEmptyTransaction is returned when there is nothing to send.
var ErrEmptyTransaction = errors.New("empty transaction")

// DefaultDifficulty is the difficulty fetched chains are validated at.
const DefaultDifficulty = 1

// =============================================================================

// Config represents the configuration required to start a wallet.
type Config struct {
	Host       string
	Miner      string
	Difficulty uint
	Transport  wire.Transport
	Out        io.Writer
	EvHandler  func(v string, args ...any)
}

// Wallet represents a wallet registered with a miner.
type Wallet struct {
	id         uint32
	host       string
	miner      string
	difficulty uint
	transport  wire.Transport
	out        io.Writer
	evHandler  func(v string, args ...any)
}

// New registers a wallet with the configured miner, which hands back the
// wallet's id.
func New(ctx context.Context, cfg Config) (*Wallet, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	w := Wallet{
		host:       cfg.Host,
		miner:      cfg.Miner,
		difficulty: cfg.Difficulty,
		transport:  cfg.Transport,
		out:        cfg.Out,
		evHandler:  ev,
	}

	if w.difficulty == 0 {
		w.difficulty = DefaultDifficulty
	}
	if w.transport == nil {
		w.transport = wire.NewClient()
	}
	if w.out == nil {
		w.out = io.Discard
	}

	reply, err := w.transport.Request(ctx, w.miner, w.newMessage(wire.TagRequireWalletID, ""))
	if err != nil {
		return nil, fmt.Errorf("require wallet id: %w", err)
	}

	id, err := wire.ParseGiveID(reply)
	if err != nil {
		return nil, fmt.Errorf("require wallet id: %w", err)
	}
	w.id = id

	ev("wallet: New: miner[%s]: assigned id[%d]", w.miner, id)

	return &w, nil
}

// ID returns the id the miner assigned to this wallet.
func (w *Wallet) ID() uint32 {
	return w.id
}

// Miner returns the host of the miner this wallet is bound to.
func (w *Wallet) Miner() string {
	return w.miner
}

// Send submits a transaction to the bound miner.
func (w *Wallet) Send(ctx context.Context, tx string) error {
	tx = strings.TrimSpace(tx)
	if tx == "" {
		return ErrEmptyTransaction
	}

	if err := database.ValidateTransaction(tx); err != nil {
		return err
	}

	w.evHandler("wallet: Send: miner[%s]: tx[%s]", w.miner, tx)

	return w.transport.Send(ctx, w.miner, w.newMessage(wire.TagTransaction, tx))
}

// FetchChain downloads the chain held by the bound miner, one block per
// message, in index order.
func (w *Wallet) FetchChain(ctx context.Context) ([]database.Block, error) {
	var blocks []database.Block

	f := func(reply wire.Message) error {
		if err := wire.ExpectTag(reply, wire.TagSendBlockchain); err != nil {
			return err
		}

		block, err := database.ParseBlock(reply.Payload)
		if err != nil {
			return wire.NewPayloadError(reply.Tag, err)
		}

		blocks = append(blocks, block)
		return nil
	}

	if err := w.transport.Stream(ctx, w.miner, w.newMessage(wire.TagRequireBlockchain, ""), f); err != nil {
		return nil, fmt.Errorf("fetch chain: %w", err)
	}

	w.evHandler("wallet: FetchChain: miner[%s]: blocks[%d]", w.miner, len(blocks))

	return blocks, nil
}

// Verify fetches the chain, validates it and reports whether the
// transaction is sealed in it.
func (w *Wallet) Verify(ctx context.Context, tx string) (bool, error) {
	blocks, err := w.FetchChain(ctx)
	if err != nil {
		return false, err
	}

	if err := database.ValidateChain(blocks, w.difficulty); err != nil {
		return false, fmt.Errorf("validate chain: %w", err)
	}

	return VerifyTransaction(blocks, strings.TrimSpace(tx))
}

// HandleCommand executes one console command and writes its outcome to the
// configured writer.
func (w *Wallet) HandleCommand(ctx context.Context, cmd string, message string) error {
	switch strings.ToLower(cmd) {
	case "send":
		if err := w.Send(ctx, message); err != nil {
			return err
		}
		fmt.Fprintf(w.out, "sent %q to miner %s\n", strings.TrimSpace(message), w.miner)

	case "check":
		blocks, err := w.FetchChain(ctx)
		if err != nil {
			return err
		}

		root, err := LedgerRoot(blocks)
		if err != nil {
			return err
		}

		fmt.Fprintf(w.out, "chain of miner %s holds %d block(s)\n", w.miner, len(blocks))
		if root != "" {
			fmt.Fprintf(w.out, "ledger root %s\n", root)
		}
		for _, block := range blocks {
			fmt.Fprintf(w.out, "  %s\n", block)
			for _, tx := range block.Transactions() {
				fmt.Fprintf(w.out, "    %s\n", tx)
			}
		}

	case "verify":
		ok, err := w.Verify(ctx, message)
		if err != nil {
			return err
		}

		if ok {
			fmt.Fprintf(w.out, "%q is sealed in the chain\n", strings.TrimSpace(message))
			return nil
		}
		fmt.Fprintf(w.out, "%q is not in the chain\n", strings.TrimSpace(message))

	case "exit":
		return ErrExit

	default:
		return fmt.Errorf("%q: %w", cmd, ErrUnknownCommand)
	}

	return nil
}

// =============================================================================

// newMessage constructs a message sent by this wallet.
func (w *Wallet) newMessage(tag wire.Tag, payload string) wire.Message {
	return wire.NewMessage(tag, w.host, w.id, payload)
}
