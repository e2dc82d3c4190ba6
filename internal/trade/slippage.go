package trade

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

// SlippageMode selects between a user-locked tolerance and one recommended
// by the estimation service.
type SlippageMode string

const (
	SlippageModeAuto  SlippageMode = "auto"
	SlippageModeFixed SlippageMode = "fixed"
)

// DefaultSlippagePct is used until the estimation service answers or the
// user locks a value.
var DefaultSlippagePct = decimal.NewFromFloat(0.5)

// SlippageSettings is the displayed tolerance plus how it was chosen.
type SlippageSettings struct {
	Mode SlippageMode
	Pct  decimal.Decimal
}

// ComputeLimitAmount turns the quoted counter-amount into the worst
// acceptable amount under the tolerance: minimum output for ExactIn, maximum
// input for ExactOut.
func ComputeLimitAmount(swapType model.SwapType, counterAmount string, slippagePct decimal.Decimal) (string, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(counterAmount))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "parse quoted amount", err)
	}
	if slippagePct.IsNegative() {
		return "", clierr.New(clierr.CodeUsage, "slippage must be non-negative")
	}
	fraction := slippagePct.Div(decimal.NewFromInt(100))
	var limit decimal.Decimal
	if swapType == model.SwapTypeExactOut {
		limit = amount.Mul(decimal.NewFromInt(1).Add(fraction))
	} else {
		limit = amount.Mul(decimal.NewFromInt(1).Sub(fraction))
	}
	return limit.String(), nil
}

// SlippageEstimator recommends a tolerance for the current trade shape.
type SlippageEstimator interface {
	RecommendSlippage(ctx context.Context, req SlippageRequest) (decimal.Decimal, error)
}

type SlippageRequest struct {
	SellToken       string `json:"sellToken"`
	BuyToken        string `json:"buyToken"`
	ChainID         int64  `json:"chainId"`
	FromAmount      string `json:"fromAmount"`
	ToAmount        string `json:"toAmount"`
	FromTokenSymbol string `json:"fromTokenSymbol"`
	ToTokenSymbol   string `json:"toTokenSymbol"`
	RouteHops       int    `json:"routeHops"`
}

// SlippageService is the HTTP client for the slippage estimation endpoint.
type SlippageService struct {
	http    *httpx.Client
	baseURL string
}

func NewSlippageService(httpClient *httpx.Client, baseURL string) *SlippageService {
	return &SlippageService{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type slippageResponse struct {
	SlippagePct *float64 `json:"slippagePct"`
}

func (s *SlippageService) RecommendSlippage(ctx context.Context, req SlippageRequest) (decimal.Decimal, error) {
	var resp slippageResponse
	if err := httpx.PostJSON(ctx, s.http, s.baseURL+"/slippage", req, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.SlippagePct == nil {
		return decimal.Zero, clierr.New(clierr.CodeUnavailable, "slippage service returned no recommendation")
	}
	rec := decimal.NewFromFloat(*resp.SlippagePct)
	if rec.IsNegative() {
		return decimal.Zero, clierr.New(clierr.CodeUnavailable, "slippage service returned a negative tolerance")
	}
	return rec, nil
}
