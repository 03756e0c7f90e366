package spam

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNoChain is returned by NoChain for every read
var ErrNoChain = errors.New("no chain endpoint configured")

// ChainReader is the chain state the rules need, read at the latest block
type ChainReader interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalanceAt(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// NoChain is used when no RPC endpoint is configured. Rules that need chain
// state cannot pass.
type NoChain struct{}

func (NoChain) NonceAt(context.Context, common.Address) (uint64, error) { return 0, ErrNoChain }

func (NoChain) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return nil, ErrNoChain
}

func (NoChain) TokenBalanceAt(context.Context, common.Address, common.Address) (*big.Int, error) {
	return nil, ErrNoChain
}

// balanceOfSelector is the ERC-20 balanceOf(address) selector
var balanceOfSelector = ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]

// EthChain reads chain state over JSON-RPC
type EthChain struct {
	client  *ethclient.Client
	timeout time.Duration
}

// DialChain connects to an Ethereum JSON-RPC endpoint
func DialChain(ctx context.Context, rpcURL string, timeout time.Duration) (*EthChain, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EthChain{client: client, timeout: timeout}, nil
}

// Close releases the RPC connection
func (c *EthChain) Close() {
	c.client.Close()
}

func (c *EthChain) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.NonceAt(ctx, account, nil)
}

func (c *EthChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.BalanceAt(ctx, account, nil)
}

func (c *EthChain) TokenBalanceAt(ctx context.Context, token, account common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(account.Bytes(), 32)...)
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short balanceOf result (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}
