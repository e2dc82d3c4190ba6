package routing

import (
	"context"
	"sync"

	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/log"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

// RouteResolver maps a token pair to its best multi-hop route. Consumed, not
// implemented, by this package; a nil route with a CodeNoRoute error means no
// path exists.
type RouteResolver interface {
	FindBestRoute(ctx context.Context, from, to model.Token, chainID int64) (*model.SwapRoute, error)
}

// HopFeeFetcher is the slice of FeeService the aggregator needs.
type HopFeeFetcher interface {
	HopFee(ctx context.Context, fromSymbol, toSymbol string, chainID int64) (int64, error)
}

// Snapshot is the aggregator's externally visible state for one token pair.
type Snapshot struct {
	Route    *model.SwapRoute
	HopFees  []int64
	RouteFee *int64 // sum of per-hop fees, nil until every hop resolved
	Loading  bool
	NoRoute  bool
	Err      error
}

type pairKey struct {
	From    string
	To      string
	ChainID int64
}

// Aggregator resolves the active route for the current pair and a dynamic
// fee per hop. It recomputes on pair change only; amounts do not affect the
// path or its fees.
type Aggregator struct {
	mu sync.Mutex

	resolver RouteResolver
	fees     HopFeeFetcher
	logger   log.Logger

	pair       pairKey
	generation uint64
	inFlight   bool
	snap       Snapshot
	onUpdate   func(Snapshot)
}

func NewAggregator(resolver RouteResolver, fees HopFeeFetcher, logger log.Logger) *Aggregator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Aggregator{resolver: resolver, fees: fees, logger: logger}
}

func (a *Aggregator) OnUpdate(fn func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUpdate = fn
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// SetPair switches the active token pair and recomputes route and fees. A
// repeated call with the unchanged pair is a no-op, as is a call while a
// cycle for the same pair is already in flight; a changed pair bumps the
// generation so the older cycle's result is ignored on arrival.
func (a *Aggregator) SetPair(ctx context.Context, from, to model.Token, chainID int64) {
	key := pairKey{From: from.Symbol, To: to.Symbol, ChainID: chainID}

	a.mu.Lock()
	if key == a.pair && (a.inFlight || a.snap.Route != nil || a.snap.NoRoute || a.snap.Err != nil) {
		a.mu.Unlock()
		return
	}
	a.pair = key
	a.generation++
	gen := a.generation
	a.inFlight = true
	a.snap = Snapshot{Loading: true}
	cb, snap := a.onUpdate, a.snap
	a.mu.Unlock()
	if cb != nil {
		cb(snap)
	}

	go a.compute(ctx, gen, from, to, chainID)
}

// Recompute forces a fresh route/fee cycle for the current pair.
func (a *Aggregator) Recompute(ctx context.Context, from, to model.Token, chainID int64) {
	a.mu.Lock()
	a.pair = pairKey{From: from.Symbol, To: to.Symbol, ChainID: chainID}
	a.generation++
	gen := a.generation
	a.inFlight = true
	a.snap = Snapshot{Loading: true}
	a.mu.Unlock()

	a.compute(ctx, gen, from, to, chainID)
}

func (a *Aggregator) compute(ctx context.Context, gen uint64, from, to model.Token, chainID int64) {
	route, err := a.resolver.FindBestRoute(ctx, from, to, chainID)

	var result Snapshot
	switch {
	case err != nil && clierr.CodeOf(err) == clierr.CodeNoRoute:
		result = Snapshot{NoRoute: true}
	case err != nil:
		a.logger.Warn("route resolution failed", zap.String("from", from.Symbol), zap.String("to", to.Symbol), zap.Error(err))
		result = Snapshot{Err: err}
	case route == nil || route.HopCount() == 0:
		result = Snapshot{NoRoute: true}
	default:
		hopFees := make([]int64, 0, route.HopCount())
		var total int64
		for _, hop := range route.Hops {
			fee, feeErr := a.fees.HopFee(ctx, hop.Token0, hop.Token1, chainID)
			if feeErr != nil {
				a.logger.Warn("hop fee fetch failed", zap.String("pool", hop.PoolID), zap.Error(feeErr))
				err = feeErr
				break
			}
			hopFees = append(hopFees, fee)
			total += fee
		}
		if err != nil {
			result = Snapshot{Route: route, Err: err}
		} else {
			routeFee := total
			result = Snapshot{Route: route, HopFees: hopFees, RouteFee: &routeFee}
		}
	}

	a.mu.Lock()
	if gen != a.generation {
		// The pair changed while this cycle ran; a newer one owns the state.
		a.mu.Unlock()
		return
	}
	a.inFlight = false
	a.snap = result
	cb, snap := a.onUpdate, a.snap
	a.mu.Unlock()
	if cb != nil {
		cb(snap)
	}
}
