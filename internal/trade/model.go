package trade

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/log"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/quote"
	"github.com/ggonzalez94/swap-cli/internal/routing"
)

// Model composes the quote fetcher, the routing aggregator and slippage
// settings into one authoritative trade state and a ready-to-execute
// parameter bundle.
type Model struct {
	mu sync.Mutex

	fetcher    *quote.Fetcher
	aggregator *routing.Aggregator
	estimator  SlippageEstimator
	logger     log.Logger

	slippage   SlippageSettings
	userLocked bool
}

func NewModel(fetcher *quote.Fetcher, aggregator *routing.Aggregator, estimator SlippageEstimator, logger log.Logger) *Model {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Model{
		fetcher:    fetcher,
		aggregator: aggregator,
		estimator:  estimator,
		logger:     logger,
		slippage:   SlippageSettings{Mode: SlippageModeAuto, Pct: DefaultSlippagePct},
	}
}

// SetSlippage locks a user-chosen tolerance; auto recommendations no longer
// overwrite it.
func (m *Model) SetSlippage(pct decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slippage = SlippageSettings{Mode: SlippageModeFixed, Pct: pct}
	m.userLocked = true
}

// SetAutoSlippage returns to service-recommended tolerances.
func (m *Model) SetAutoSlippage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slippage = SlippageSettings{Mode: SlippageModeAuto, Pct: m.slippage.Pct}
	m.userLocked = false
}

func (m *Model) Slippage() SlippageSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slippage
}

// State derives the trade state from quote, route and fee freshness and the
// two amount fields. ready implies a non-nil route, a non-nil fee and both
// amounts parsing to a positive value.
func (m *Model) State() model.TradeState {
	qs := m.fetcher.Snapshot()
	rs := m.aggregator.Snapshot()

	if _, positive := model.ParsePositiveAmount(qs.Input.Amount); !positive {
		return model.TradeStateIdle
	}
	if rs.NoRoute {
		return model.TradeStateNoRoute
	}
	if qs.Err != nil || rs.Err != nil {
		return model.TradeStateError
	}
	if qs.Loading || rs.Loading || qs.Quote == nil {
		return model.TradeStateLoading
	}
	if rs.Route == nil || rs.RouteFee == nil {
		return model.TradeStateLoading
	}
	if _, ok := model.ParsePositiveAmount(counterAmount(qs.Quote)); !ok {
		return model.TradeStateLoading
	}
	return model.TradeStateReady
}

// Execution recomputes the execution bundle from the current snapshots. It
// is computed even when the trade is not ready so the transition into ready
// is glitch-free; callers gate on State before submitting.
func (m *Model) Execution() model.ExecutionTradeParams {
	qs := m.fetcher.Snapshot()
	rs := m.aggregator.Snapshot()
	m.mu.Lock()
	slippage := m.slippage
	m.mu.Unlock()

	params := model.ExecutionTradeParams{
		SwapType: qs.Input.SwapType(),
		Route:    rs.Route,
	}
	params.DynamicSwapFee = rs.RouteFee

	if qs.Quote == nil {
		return params
	}
	params.AmountDecimalsStr = fixedAmount(qs.Quote)
	limit, err := ComputeLimitAmount(params.SwapType, counterAmount(qs.Quote), slippage.Pct)
	if err != nil {
		m.logger.Debug("limit amount unavailable", zap.Error(err))
		return params
	}
	params.LimitAmountDecimalsStr = limit
	return params
}

// RefreshAutoSlippage asks the estimation service for a recommended
// tolerance based on the latest successful quote. The recommendation
// overwrites the displayed value only while the user has not locked one.
func (m *Model) RefreshAutoSlippage(ctx context.Context) {
	m.mu.Lock()
	locked := m.userLocked
	m.mu.Unlock()
	if locked || m.estimator == nil {
		return
	}
	qs := m.fetcher.Snapshot()
	if qs.Quote == nil || qs.Err != nil {
		return
	}
	rec, err := m.estimator.RecommendSlippage(ctx, SlippageRequest{
		SellToken:       qs.Input.FromToken.Address,
		BuyToken:        qs.Input.ToToken.Address,
		ChainID:         qs.Input.ChainID,
		FromAmount:      qs.Quote.FromAmount,
		ToAmount:        qs.Quote.ToAmount,
		FromTokenSymbol: qs.Quote.FromSymbol,
		ToTokenSymbol:   qs.Quote.ToSymbol,
		RouteHops:       qs.Quote.Route.HopCount(),
	})
	if err != nil {
		m.logger.Debug("slippage recommendation failed", zap.Error(err))
		return
	}
	m.mu.Lock()
	if !m.userLocked {
		m.slippage.Pct = rec
	}
	m.mu.Unlock()
}

// RefreshBindingQuote performs an awaited, cache-bypassing re-quote so the
// executed trade reflects price at confirmation time, not at last keystroke.
func (m *Model) RefreshBindingQuote(ctx context.Context) error {
	_, err := m.fetcher.Refresh(ctx, true)
	return err
}

// EnsureReady verifies the trade can be handed to the execution machine.
func (m *Model) EnsureReady() error {
	if state := m.State(); state != model.TradeStateReady {
		return clierr.New(clierr.CodeNotReady, "trade is not ready to execute (state "+string(state)+")")
	}
	params := m.Execution()
	if params.Route == nil || params.DynamicSwapFee == nil ||
		params.AmountDecimalsStr == "" || params.LimitAmountDecimalsStr == "" {
		return clierr.New(clierr.CodeNotReady, "trade parameters are incomplete")
	}
	return nil
}

// Input exposes the fetcher's current input for the execution layer.
func (m *Model) Input() quote.Input {
	return m.fetcher.Snapshot().Input
}

// Quote exposes the latest applied quote, if any.
func (m *Model) Quote() *model.SwapQuote {
	return m.fetcher.Snapshot().Quote
}

// fixedAmount is the side the user fixed; counterAmount the solved side.
func fixedAmount(q *model.SwapQuote) string {
	if q.SwapType == model.SwapTypeExactOut {
		return q.ToAmount
	}
	return q.FromAmount
}

func counterAmount(q *model.SwapQuote) string {
	if q.SwapType == model.SwapTypeExactOut {
		return q.FromAmount
	}
	return q.ToAmount
}
