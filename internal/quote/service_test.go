package quote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/httpx"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

func testTokens() (model.Token, model.Token) {
	usdc := model.Token{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6}
	weth := model.Token{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18}
	return usdc, weth
}

func TestServiceFetchExactIn(t *testing.T) {
	var gotBody quoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(quoteResponse{
			Success:  true,
			ToAmount: "0.41",
			Route: &model.SwapRoute{Hops: []model.RouteHop{
				{Token0: "USDC", Token1: "WETH", PoolID: "pool-1", FeeTier: 500},
			}},
			PriceImpact:   0.12,
			DynamicFeeBps: 5,
		})
	}))
	defer srv.Close()

	usdc, weth := testTokens()
	svc := NewService(httpx.New(2*time.Second, 0), srv.URL)
	quote, err := svc.Fetch(context.Background(), Request{
		FromToken: usdc, ToToken: weth,
		Amount: "1000", SwapType: model.SwapTypeExactIn,
		ChainID: 1, Network: "mainnet", Binding: true,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotBody.SwapType != "ExactIn" || !gotBody.Binding || gotBody.AmountDecimalsStr != "1000" {
		t.Fatalf("request body not forwarded: %+v", gotBody)
	}
	if quote.FromAmount != "1000" || quote.ToAmount != "0.41" {
		t.Fatalf("unexpected amounts: %+v", quote)
	}
	if !quote.Binding || quote.Route.HopCount() != 1 {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestServiceFetchExactOutSolvesInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(quoteResponse{Success: true, FromAmount: "2440.5"})
	}))
	defer srv.Close()

	usdc, weth := testTokens()
	svc := NewService(httpx.New(2*time.Second, 0), srv.URL)
	quote, err := svc.Fetch(context.Background(), Request{
		FromToken: usdc, ToToken: weth,
		Amount: "1", SwapType: model.SwapTypeExactOut, ChainID: 1, Network: "mainnet",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if quote.FromAmount != "2440.5" || quote.ToAmount != "1" {
		t.Fatalf("unexpected amounts: %+v", quote)
	}
}

func TestServiceFetchClassifiesErrors(t *testing.T) {
	cases := []struct {
		name     string
		swapType model.SwapType
		message  string
		want     clierr.Code
	}{
		{"exact in liquidity", model.SwapTypeExactIn, "insufficient liquidity for amount", clierr.CodeLiquidity},
		{"exact out unfillable", model.SwapTypeExactOut, "cannot satisfy exact output", clierr.CodeLiquidity},
		{"empty message", model.SwapTypeExactIn, "", clierr.CodeNoQuote},
		{"other", model.SwapTypeExactIn, "pair not indexed", clierr.CodeNoQuote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(quoteResponse{Success: false, Error: tc.message})
			}))
			defer srv.Close()

			usdc, weth := testTokens()
			svc := NewService(httpx.New(2*time.Second, 0), srv.URL)
			_, err := svc.Fetch(context.Background(), Request{
				FromToken: usdc, ToToken: weth,
				Amount: "10", SwapType: tc.swapType, ChainID: 1, Network: "mainnet",
			})
			if clierr.CodeOf(err) != tc.want {
				t.Fatalf("got %v, want code %d", err, tc.want)
			}
		})
	}
}
