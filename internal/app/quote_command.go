package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/quote"
	"github.com/ggonzalez94/swap-cli/internal/registry"
	"github.com/ggonzalez94/swap-cli/internal/routing"
	"github.com/ggonzalez94/swap-cli/internal/trade"
)

type quoteFlags struct {
	From     string
	To       string
	Amount   string
	ExactOut bool
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var flags quoteFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Fetch an indicative quote with route and fees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runQuote(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.From, "from", "", "input token symbol")
	cmd.Flags().StringVar(&flags.To, "to", "", "output token symbol")
	cmd.Flags().StringVar(&flags.Amount, "amount", "", "decimal amount of the fixed side")
	cmd.Flags().BoolVar(&flags.ExactOut, "exact-out", false, "fix the output amount instead of the input")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// buildTrade assembles the quote fetcher, routing aggregator and trade
// model shared by the quote and swap commands.
func (s *runtimeState) buildTrade(flags quoteFlags) (*trade.Model, *quote.Fetcher, *routing.Aggregator, quote.Input, error) {
	if s.settings.QuoteURL == "" {
		return nil, nil, nil, quote.Input{}, clierr.New(clierr.CodeUsage, "quote service URL is not configured (services.quote)")
	}
	fromToken, err := registry.LookupToken(s.settings.ChainID, flags.From)
	if err != nil {
		return nil, nil, nil, quote.Input{}, clierr.Wrap(clierr.CodeUsage, "resolve input token", err)
	}
	toToken, err := registry.LookupToken(s.settings.ChainID, flags.To)
	if err != nil {
		return nil, nil, nil, quote.Input{}, clierr.Wrap(clierr.CodeUsage, "resolve output token", err)
	}
	if _, positive := model.ParsePositiveAmount(flags.Amount); !positive {
		return nil, nil, nil, quote.Input{}, clierr.New(clierr.CodeUsage, "--amount must be a positive decimal")
	}

	httpClient := s.newHTTPClient()
	var service quote.QuoteService = quote.NewService(httpClient, s.settings.QuoteURL)
	if s.cache != nil {
		service = quote.NewCachedService(service, s.cache, s.logger)
	}

	fetcher := quote.NewFetcher(service, s.logger)
	resolver := routing.NewQuoteRouteResolver(service, s.settings.Network)
	fees := routing.NewFeeService(httpClient, s.settings.FeeURL)
	aggregator := routing.NewAggregator(resolver, fees, s.logger)

	var estimator trade.SlippageEstimator
	if s.settings.SlippageURL != "" {
		estimator = trade.NewSlippageService(httpClient, s.settings.SlippageURL)
	}
	tradeModel := trade.NewModel(fetcher, aggregator, estimator, s.logger)
	if s.settings.SlippageMode == "fixed" {
		pct, err := decimal.NewFromString(s.settings.SlippagePct)
		if err != nil || pct.IsNegative() {
			return nil, nil, nil, quote.Input{}, clierr.New(clierr.CodeUsage, "slippage must be a non-negative decimal percent")
		}
		tradeModel.SetSlippage(pct)
	}

	side := model.EditedSideFrom
	if flags.ExactOut {
		side = model.EditedSideTo
	}
	input := quote.Input{
		FromToken: fromToken,
		ToToken:   toToken,
		Amount:    flags.Amount,
		Side:      side,
		ChainID:   s.settings.ChainID,
		Network:   s.settings.Network,
	}
	return tradeModel, fetcher, aggregator, input, nil
}

func (s *runtimeState) runQuote(ctx context.Context, flags quoteFlags) error {
	tradeModel, fetcher, aggregator, input, err := s.buildTrade(flags)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	fetcher.SetInput(input)
	aggregator.Recompute(ctx, input.FromToken, input.ToToken, input.ChainID)
	if _, err := fetcher.Refresh(ctx, false); err != nil {
		return err
	}
	tradeModel.RefreshAutoSlippage(ctx)

	q := tradeModel.Quote()
	params := tradeModel.Execution()
	state := tradeModel.State()

	if s.flags.JSON {
		out := map[string]any{
			"state":     state,
			"quote":     q,
			"execution": params,
			"slippage":  tradeModel.Slippage().Pct.String(),
		}
		buf, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return clierr.Wrap(clierr.CodeInternal, "encode output", err)
		}
		fmt.Fprintln(s.runner.stdout, string(buf))
		return nil
	}

	fmt.Fprintf(s.runner.stdout, "state:     %s\n", state)
	if q != nil {
		fmt.Fprintf(s.runner.stdout, "sell:      %s %s\n", q.FromAmount, q.FromSymbol)
		fmt.Fprintf(s.runner.stdout, "buy:       %s %s\n", q.ToAmount, q.ToSymbol)
		fmt.Fprintf(s.runner.stdout, "impact:    %.4f%%\n", q.PriceImpactPct)
	}
	if params.DynamicSwapFee != nil {
		fmt.Fprintf(s.runner.stdout, "fee:       %d bps\n", *params.DynamicSwapFee)
	}
	if params.LimitAmountDecimalsStr != "" {
		fmt.Fprintf(s.runner.stdout, "limit:     %s (slippage %s%%)\n", params.LimitAmountDecimalsStr, tradeModel.Slippage().Pct.String())
	}
	if params.Route != nil {
		hops := make([]string, 0, params.Route.HopCount())
		for _, hop := range params.Route.Hops {
			hops = append(hops, hop.PoolID)
		}
		fmt.Fprintf(s.runner.stdout, "route:     %s (%d hop(s))\n", strings.Join(hops, " -> "), params.Route.HopCount())
	}
	return nil
}
