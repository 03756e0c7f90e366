// Package spam evaluates a recipient's spam filter rules against an incoming
// message's routing data and the sender's on-chain footprint.
package spam

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xelth-com/dsrelay/internal/models"
)

// Filter decides whether a message is accepted
type Filter interface {
	Evaluate(ctx context.Context, rules *models.SpamFilterRules, info models.DeliveryInformation) (bool, error)
}

// AddressResolver maps an identity to its wallet address
type AddressResolver interface {
	ResolveAddress(ctx context.Context, identity string) (common.Address, error)
}

// RuleFilter evaluates SpamFilterRules with chain state
type RuleFilter struct {
	chain    ChainReader
	resolver AddressResolver
}

// NewRuleFilter builds a RuleFilter
func NewRuleFilter(chain ChainReader, resolver AddressResolver) *RuleFilter {
	if chain == nil {
		chain = NoChain{}
	}
	return &RuleFilter{chain: chain, resolver: resolver}
}

var _ Filter = (*RuleFilter)(nil)

// Evaluate accepts when there are no rules. Otherwise every rule present must
// pass. An error means the rules could not be evaluated.
func (f *RuleFilter) Evaluate(ctx context.Context, rules *models.SpamFilterRules, info models.DeliveryInformation) (bool, error) {
	if rules.Empty() {
		return true, nil
	}

	sender, err := f.resolver.ResolveAddress(ctx, info.From)
	if err != nil {
		return false, fmt.Errorf("resolve sender: %w", err)
	}

	if rules.MinNonce != nil {
		nonce, err := f.chain.NonceAt(ctx, sender)
		if err != nil {
			return false, fmt.Errorf("nonce: %w", err)
		}
		if nonce < *rules.MinNonce {
			return false, nil
		}
	}

	if rules.MinBalance != "" {
		floor, ok := new(big.Int).SetString(rules.MinBalance, 10)
		if !ok {
			return false, fmt.Errorf("invalid minBalance %q", rules.MinBalance)
		}
		balance, err := f.chain.BalanceAt(ctx, sender)
		if err != nil {
			return false, fmt.Errorf("balance: %w", err)
		}
		if balance.Cmp(floor) < 0 {
			return false, nil
		}
	}

	if rt := rules.MinTokenBalance; rt != nil {
		if !common.IsHexAddress(rt.Address) {
			return false, fmt.Errorf("invalid token address %q", rt.Address)
		}
		floor, ok := new(big.Int).SetString(rt.Amount, 10)
		if !ok {
			return false, fmt.Errorf("invalid token amount %q", rt.Amount)
		}
		balance, err := f.chain.TokenBalanceAt(ctx, common.HexToAddress(rt.Address), sender)
		if err != nil {
			return false, fmt.Errorf("token balance: %w", err)
		}
		if balance.Cmp(floor) < 0 {
			return false, nil
		}
	}

	return true, nil
}

// Validate checks that rules are well formed before they are stored
func Validate(rules *models.SpamFilterRules) error {
	if rules == nil {
		return nil
	}
	if rules.MinBalance != "" {
		if v, ok := new(big.Int).SetString(rules.MinBalance, 10); !ok || v.Sign() < 0 {
			return fmt.Errorf("minBalance must be a non-negative decimal")
		}
	}
	if rt := rules.MinTokenBalance; rt != nil {
		if !common.IsHexAddress(rt.Address) {
			return fmt.Errorf("minTokenBalance.address must be a hex address")
		}
		if v, ok := new(big.Int).SetString(rt.Amount, 10); !ok || v.Sign() < 0 {
			return fmt.Errorf("minTokenBalance.amount must be a non-negative decimal")
		}
	}
	return nil
}
