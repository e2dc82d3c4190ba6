package permit

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
)

// ExistingPermit is a still-valid Permit2 allowance already recorded
// on-chain for the spender.
type ExistingPermit struct {
	Amount     string `json:"amount"`
	Expiration int64  `json:"expiration"`
	Nonce      int64  `json:"nonce"`
}

// Data is the discriminated permit union: either no signature is needed
// (optionally because an existing permit covers the amount), or the service
// returns an EIP-712 PermitSingle payload to sign.
type Data struct {
	NeedsPermit    bool                `json:"needsPermit"`
	ExistingPermit *ExistingPermit     `json:"existingPermit,omitempty"`
	TypedData      *apitypes.TypedData `json:"typedData,omitempty"`
}

// Identity is the full identity key of a permit payload. A stored signature
// is only valid for the exact identity it was produced for; any field change
// invalidates it.
type Identity struct {
	ChainID     int64
	Spender     string
	Token       string
	Amount      string
	Expiration  string
	Nonce       string
	SigDeadline string
}

// IdentityOf derives the identity key from a PermitSingle typed-data
// payload.
func IdentityOf(typed *apitypes.TypedData) (Identity, error) {
	if typed == nil {
		return Identity{}, clierr.New(clierr.CodeInternal, "missing typed data")
	}
	chainID := int64(0)
	if typed.Domain.ChainId != nil {
		chainID = (*big.Int)(typed.Domain.ChainId).Int64()
	}
	msg := typed.Message
	details, ok := msg["details"].(map[string]interface{})
	if !ok {
		return Identity{}, clierr.New(clierr.CodeInternal, "permit message missing details")
	}
	identity := Identity{
		ChainID:     chainID,
		Spender:     asString(msg["spender"]),
		Token:       asString(details["token"]),
		Amount:      asString(details["amount"]),
		Expiration:  asString(details["expiration"]),
		Nonce:       asString(details["nonce"]),
		SigDeadline: asString(msg["sigDeadline"]),
	}
	if identity.Token == "" || identity.Spender == "" {
		return Identity{}, clierr.New(clierr.CodeInternal, "permit message missing token or spender")
	}
	return identity, nil
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// Service fetches permit preparation data. Fetched fresh before each
// execution attempt; results are never reused across attempts.
type Service struct {
	http    *httpx.Client
	baseURL string
}

func NewService(httpClient *httpx.Client, baseURL string) *Service {
	return &Service{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type prepareRequest struct {
	UserAddress      string `json:"userAddress"`
	FromTokenAddress string `json:"fromTokenAddress"`
	FromTokenSymbol  string `json:"fromTokenSymbol"`
	ToTokenSymbol    string `json:"toTokenSymbol"`
	ChainID          int64  `json:"chainId"`
	AmountIn         string `json:"amountIn"`
	ApprovalMode     string `json:"approvalMode"`
}

type PrepareRequest struct {
	UserAddress      string
	FromTokenAddress string
	FromTokenSymbol  string
	ToTokenSymbol    string
	ChainID          int64
	AmountIn         string
	ApprovalMode     string
}

func (s *Service) Prepare(ctx context.Context, req PrepareRequest) (Data, error) {
	payload := prepareRequest{
		UserAddress:      req.UserAddress,
		FromTokenAddress: req.FromTokenAddress,
		FromTokenSymbol:  req.FromTokenSymbol,
		ToTokenSymbol:    req.ToTokenSymbol,
		ChainID:          req.ChainID,
		AmountIn:         req.AmountIn,
		ApprovalMode:     req.ApprovalMode,
	}
	var data Data
	if err := httpx.PostJSON(ctx, s.http, s.baseURL+"/permit", payload, nil, &data); err != nil {
		return Data{}, err
	}
	if data.NeedsPermit && data.TypedData == nil {
		return Data{}, clierr.New(clierr.CodeUnavailable, "permit service returned no typed data")
	}
	return data, nil
}
