package quote

import (
	"context"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

// Request identifies one quote: the pair, the fixed amount and which side it
// fixes.
type Request struct {
	FromToken model.Token
	ToToken   model.Token
	Amount    string
	SwapType  model.SwapType
	ChainID   int64
	Network   string
	Binding   bool
}

// Service fetches indicative and binding quotes from the quote endpoint.
type Service struct {
	http    *httpx.Client
	baseURL string
	now     func() time.Time
}

func NewService(httpClient *httpx.Client, baseURL string) *Service {
	return &Service{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

type quoteRequest struct {
	FromTokenSymbol   string `json:"fromTokenSymbol"`
	ToTokenSymbol     string `json:"toTokenSymbol"`
	AmountDecimalsStr string `json:"amountDecimalsStr"`
	SwapType          string `json:"swapType"`
	ChainID           int64  `json:"chainId"`
	Network           string `json:"network"`
	Binding           bool   `json:"binding"`
}

type quoteResponse struct {
	Success       bool             `json:"success"`
	ToAmount      string           `json:"toAmount"`
	FromAmount    string           `json:"fromAmount"`
	Route         *model.SwapRoute `json:"route"`
	PriceImpact   float64          `json:"priceImpact"`
	DynamicFeeBps int64            `json:"dynamicFeeBps"`
	Error         string           `json:"error"`
}

// Fetch requests a quote. Classified failures: liquidity exhausted for exact
// input, unfillable exact output, generic no-quote, and transport errors.
func (s *Service) Fetch(ctx context.Context, req Request) (model.SwapQuote, error) {
	payload := quoteRequest{
		FromTokenSymbol:   req.FromToken.Symbol,
		ToTokenSymbol:     req.ToToken.Symbol,
		AmountDecimalsStr: req.Amount,
		SwapType:          string(req.SwapType),
		ChainID:           req.ChainID,
		Network:           req.Network,
		Binding:           req.Binding,
	}

	var resp quoteResponse
	if err := httpx.PostJSON(ctx, s.http, s.baseURL+"/quote", payload, nil, &resp); err != nil {
		return model.SwapQuote{}, err
	}
	if !resp.Success {
		return model.SwapQuote{}, classifyQuoteError(req.SwapType, resp.Error)
	}

	quote := model.SwapQuote{
		SwapType:       req.SwapType,
		FromSymbol:     req.FromToken.Symbol,
		ToSymbol:       req.ToToken.Symbol,
		Route:          resp.Route,
		PriceImpactPct: resp.PriceImpact,
		DynamicFeeBps:  resp.DynamicFeeBps,
		Binding:        req.Binding,
		FetchedAt:      s.now().UTC(),
	}
	switch req.SwapType {
	case model.SwapTypeExactIn:
		if resp.ToAmount == "" {
			return model.SwapQuote{}, clierr.New(clierr.CodeNoQuote, "quote missing output amount")
		}
		quote.FromAmount = req.Amount
		quote.ToAmount = resp.ToAmount
	case model.SwapTypeExactOut:
		if resp.FromAmount == "" {
			return model.SwapQuote{}, clierr.New(clierr.CodeNoQuote, "quote missing input amount")
		}
		quote.FromAmount = resp.FromAmount
		quote.ToAmount = req.Amount
	default:
		return model.SwapQuote{}, clierr.New(clierr.CodeUsage, "swap type must be ExactIn or ExactOut")
	}
	return quote, nil
}

func classifyQuoteError(swapType model.SwapType, message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "liquidity") && swapType == model.SwapTypeExactIn:
		return clierr.New(clierr.CodeLiquidity, "amount exceeds available liquidity")
	case strings.Contains(lower, "liquidity"), strings.Contains(lower, "exact output"):
		return clierr.New(clierr.CodeLiquidity, "cannot fulfill requested output amount")
	case message == "":
		return clierr.New(clierr.CodeNoQuote, "quote service returned no quote")
	default:
		return clierr.New(clierr.CodeNoQuote, "quote unavailable: "+message)
	}
}
