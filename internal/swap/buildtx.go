package swap

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/registry"
)

// BuildRequest carries everything the backend needs to construct router
// commands/inputs for one swap.
type BuildRequest struct {
	UserAddress       string         `json:"userAddress"`
	SwapType          model.SwapType `json:"swapType"`
	FromTokenSymbol   string         `json:"fromTokenSymbol"`
	ToTokenSymbol     string         `json:"toTokenSymbol"`
	AmountDecimalsStr string         `json:"amountDecimalsStr"`
	LimitAmountStr    string         `json:"limitAmountDecimalsStr"`
	DynamicSwapFee    int64          `json:"dynamicSwapFee"`
	ChainID           int64          `json:"chainId"`
	PermitSignature   string         `json:"permitSignature,omitempty"`
	PermitNonce       string         `json:"permitNonce,omitempty"`
	PermitExpiration  string         `json:"permitExpiration,omitempty"`
	PermitSigDeadline string         `json:"permitSigDeadline,omitempty"`
	PermitAmount      string         `json:"permitAmount,omitempty"`
}

// BuiltTx is ready for direct submission to the router's execute entry
// point.
type BuiltTx struct {
	To           string   `json:"to"`
	Commands     string   `json:"commands"`
	Inputs       []string `json:"inputs"`
	Deadline     string   `json:"deadline"`
	Value        string   `json:"value"`
	TouchedPools []string `json:"touchedPools"`
}

// TxBuilder is the slice of the build service the machine needs.
type TxBuilder interface {
	Build(ctx context.Context, req BuildRequest) (BuiltTx, error)
}

// BuildService is the HTTP client for the transaction build endpoint.
type BuildService struct {
	http    *httpx.Client
	baseURL string
}

func NewBuildService(httpClient *httpx.Client, baseURL string) *BuildService {
	return &BuildService{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type buildResponse struct {
	Success bool    `json:"success"`
	Error   string  `json:"error"`
	BuiltTx BuiltTx `json:"tx"`
}

func (s *BuildService) Build(ctx context.Context, req BuildRequest) (BuiltTx, error) {
	var resp buildResponse
	if err := httpx.PostJSON(ctx, s.http, s.baseURL+"/build-tx", req, nil, &resp); err != nil {
		return BuiltTx{}, err
	}
	if !resp.Success {
		if msg := strings.ToLower(resp.Error); strings.Contains(msg, "nonce") || strings.Contains(msg, "signature") {
			return BuiltTx{}, clierr.New(clierr.CodePermitStale, "permit signature no longer valid: "+resp.Error)
		}
		return BuiltTx{}, clierr.New(clierr.CodeUnavailable, "build transaction failed: "+resp.Error)
	}
	if resp.BuiltTx.To == "" {
		return BuiltTx{}, clierr.New(clierr.CodeUnavailable, "build service returned no target contract")
	}
	return resp.BuiltTx, nil
}

// RouterCalldata packs the built commands and inputs into an execute call.
func RouterCalldata(built BuiltTx) (common.Address, *big.Int, []byte, error) {
	if !common.IsHexAddress(built.To) {
		return common.Address{}, nil, nil, clierr.New(clierr.CodeInternal, "built tx has invalid target address")
	}
	commands, err := hexutil.Decode(withHexPrefix(built.Commands))
	if err != nil {
		return common.Address{}, nil, nil, clierr.Wrap(clierr.CodeInternal, "decode router commands", err)
	}
	inputs := make([][]byte, 0, len(built.Inputs))
	for _, in := range built.Inputs {
		decoded, err := hexutil.Decode(withHexPrefix(in))
		if err != nil {
			return common.Address{}, nil, nil, clierr.Wrap(clierr.CodeInternal, "decode router input", err)
		}
		inputs = append(inputs, decoded)
	}
	deadline, ok := new(big.Int).SetString(built.Deadline, 10)
	if !ok {
		return common.Address{}, nil, nil, clierr.New(clierr.CodeInternal, "built tx has invalid deadline")
	}
	value := big.NewInt(0)
	if strings.TrimSpace(built.Value) != "" {
		value, ok = new(big.Int).SetString(built.Value, 10)
		if !ok {
			return common.Address{}, nil, nil, clierr.New(clierr.CodeInternal, "built tx has invalid value")
		}
	}

	router, err := abi.JSON(strings.NewReader(registry.UniversalRouterABI))
	if err != nil {
		return common.Address{}, nil, nil, clierr.Wrap(clierr.CodeInternal, "parse router abi", err)
	}
	calldata, err := router.Pack("execute", commands, inputs, deadline)
	if err != nil {
		return common.Address{}, nil, nil, clierr.Wrap(clierr.CodeInternal, "pack router calldata", err)
	}
	return common.HexToAddress(built.To), value, calldata, nil
}

func withHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}
