package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// ChainClient is the on-chain surface consumed by the swap pipeline:
// allowance reads, contract-call submission and status-checked receipt
// waits. Backed by ethclient in production; tests substitute a fake.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	SubmitCall(ctx context.Context, signer Signer, to common.Address, value *big.Int, data []byte) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) error
}

// SubmitOptions mirror the gas controls exposed on execution commands.
type SubmitOptions struct {
	PollInterval  time.Duration
	StepTimeout   time.Duration
	GasMultiplier float64
}

func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{
		PollInterval:  2 * time.Second,
		StepTimeout:   2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

type EthChainClient struct {
	client *ethclient.Client
	opts   SubmitOptions
	erc20  abi.ABI
}

func Dial(ctx context.Context, rpcURL string, opts SubmitOptions) (*EthChainClient, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	erc20, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse erc20 abi", err)
	}
	return &EthChainClient{client: client, opts: opts, erc20: erc20}, nil
}

func (c *EthChainClient) Close() {
	c.client.Close()
}

func (c *EthChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	return chainID, nil
}

func (c *EthChainClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := c.erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack allowance calldata", err)
	}
	raw, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read allowance", err)
	}
	values, err := c.erc20.Unpack("allowance", raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode allowance", err)
	}
	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "unexpected allowance return type")
	}
	return allowance, nil
}

// SubmitCall estimates gas, signs with the EIP-1559 fee model and
// broadcasts. It does not wait for inclusion; pair with WaitReceipt.
func (c *EthChainClient) SubmitCall(ctx context.Context, signer Signer, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	msg := ethereum.CallMsg{From: signer.Address(), To: &to, Value: value, Data: data}

	gasLimit, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeReverted, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * c.opts.GasMultiplier)

	tipCap, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := c.client.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := signer.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed.Hash(), nil
}

// WaitReceipt polls for the receipt and checks its success status; trusting
// submission alone would miss on-chain reverts.
func (c *EthChainClient) WaitReceipt(ctx context.Context, hash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.StepTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeReverted, fmt.Sprintf("transaction %s reverted on-chain", hash.Hex()))
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			// Transient RPC polling failures are retried until timeout.
			_ = err
		}
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// ApproveCalldata packs an ERC-20 approve(spender, amount) call.
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(registry.ERC20MinimalABI))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "parse erc20 abi", err)
	}
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	return data, nil
}
