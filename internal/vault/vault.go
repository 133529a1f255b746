// Package vault defines the share ledger commands fee settlement issues and an
// in-memory ledger implementing them.
package vault

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/mtlprog/fundfee/internal/domain"
)

// ErrInsufficientShares is returned when a burn or transfer exceeds the holder's balance.
var ErrInsufficientShares = errors.New("insufficient shares")

// Vault is the share ledger of one fund. Each call is atomic and fails loudly on
// invariant violations.
type Vault interface {
	MintShares(ctx context.Context, to string, amount sdkmath.Int) error
	BurnShares(ctx context.Context, from string, amount sdkmath.Int) error
	TransferShares(ctx context.Context, from, to string, amount sdkmath.Int) error
	BalanceOf(ctx context.Context, holder string) (sdkmath.Int, error)
}

// CommandKind is a vault mutation.
type CommandKind int

const (
	CommandMint CommandKind = iota + 1
	CommandBurn
	CommandTransfer
)

func (k CommandKind) String() string {
	switch k {
	case CommandMint:
		return "mint"
	case CommandBurn:
		return "burn"
	case CommandTransfer:
		return "transfer"
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one vault mutation.
type Command struct {
	Kind   CommandKind `json:"kind"`
	From   string      `json:"from,omitempty"`
	To     string      `json:"to,omitempty"`
	Amount sdkmath.Int `json:"amount"`
}

// FromInstruction maps a settlement instruction to a vault command. Outstanding variants
// credit or debit the fee's escrow holder instead of the live holders.
func FromInstruction(ins domain.Instruction) (Command, error) {
	if ins.Shares.IsNil() || !ins.Shares.IsPositive() {
		return Command{}, fmt.Errorf("%w: %s instruction with %v shares", domain.ErrInvariant, ins.FeeType, ins.Shares)
	}
	escrow := domain.EscrowHolder(ins.FeeType)

	switch ins.Type {
	case domain.SettlementDirect:
		if ins.Payer == "" || ins.Payee == "" {
			return Command{}, fmt.Errorf("%w: %s direct settlement needs payer and payee", domain.ErrInvariant, ins.FeeType)
		}
		return Command{Kind: CommandTransfer, From: ins.Payer, To: ins.Payee, Amount: ins.Shares}, nil
	case domain.SettlementMint:
		if ins.Payee == "" {
			return Command{}, fmt.Errorf("%w: %s mint needs a payee", domain.ErrInvariant, ins.FeeType)
		}
		return Command{Kind: CommandMint, To: ins.Payee, Amount: ins.Shares}, nil
	case domain.SettlementMintSharesOutstanding:
		return Command{Kind: CommandMint, To: escrow, Amount: ins.Shares}, nil
	case domain.SettlementBurn:
		if ins.Payer == "" {
			return Command{}, fmt.Errorf("%w: %s burn needs a payer", domain.ErrInvariant, ins.FeeType)
		}
		return Command{Kind: CommandBurn, From: ins.Payer, Amount: ins.Shares}, nil
	case domain.SettlementBurnSharesOutstanding:
		return Command{Kind: CommandBurn, From: escrow, Amount: ins.Shares}, nil
	}
	return Command{}, fmt.Errorf("%w: unsupported settlement type %s", domain.ErrInvariant, ins.Type)
}

// Apply executes commands in order and stops at the first failure. Atomicity across the
// batch is the caller's transaction.
func Apply(ctx context.Context, v Vault, cmds []Command) error {
	for i, c := range cmds {
		var err error
		switch c.Kind {
		case CommandMint:
			err = v.MintShares(ctx, c.To, c.Amount)
		case CommandBurn:
			err = v.BurnShares(ctx, c.From, c.Amount)
		case CommandTransfer:
			err = v.TransferShares(ctx, c.From, c.To, c.Amount)
		default:
			err = fmt.Errorf("%w: unknown command %s", domain.ErrInvariant, c.Kind)
		}
		if err != nil {
			return fmt.Errorf("applying command %d (%s): %w", i, c.Kind, err)
		}
	}
	return nil
}
