package routing

import (
	"context"
	"strings"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
)

// FeeService fetches the dynamic swap fee for one pool hop, keyed by the
// hop's token pair.
type FeeService struct {
	http    *httpx.Client
	baseURL string
}

func NewFeeService(httpClient *httpx.Client, baseURL string) *FeeService {
	return &FeeService{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type feeRequest struct {
	FromTokenSymbol string `json:"fromTokenSymbol"`
	ToTokenSymbol   string `json:"toTokenSymbol"`
	ChainID         int64  `json:"chainId"`
}

type feeResponse struct {
	DynamicFee *int64 `json:"dynamicFee"`
}

// HopFee returns the dynamic fee in basis points for a single hop.
func (s *FeeService) HopFee(ctx context.Context, fromSymbol, toSymbol string, chainID int64) (int64, error) {
	payload := feeRequest{FromTokenSymbol: fromSymbol, ToTokenSymbol: toSymbol, ChainID: chainID}
	var resp feeResponse
	if err := httpx.PostJSON(ctx, s.http, s.baseURL+"/dynamic-fee", payload, nil, &resp); err != nil {
		return 0, err
	}
	if resp.DynamicFee == nil {
		return 0, clierr.New(clierr.CodeUnavailable, "fee service returned no fee")
	}
	return *resp.DynamicFee, nil
}
