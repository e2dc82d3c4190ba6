package routing

import (
	"context"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/quote"
)

// routeProbeAmount is a nominal size used to ask the quote service for the
// best path. Routing is path-dependent, not size-dependent, so the probe
// amount does not affect which route comes back.
const routeProbeAmount = "1"

// QuoteRouteResolver resolves the best route through the quote service,
// which returns the winning path alongside every quote.
type QuoteRouteResolver struct {
	service quote.QuoteService
	network string
}

func NewQuoteRouteResolver(service quote.QuoteService, network string) *QuoteRouteResolver {
	return &QuoteRouteResolver{service: service, network: network}
}

func (r *QuoteRouteResolver) FindBestRoute(ctx context.Context, from, to model.Token, chainID int64) (*model.SwapRoute, error) {
	q, err := r.service.Fetch(ctx, quote.Request{
		FromToken: from,
		ToToken:   to,
		Amount:    routeProbeAmount,
		SwapType:  model.SwapTypeExactIn,
		ChainID:   chainID,
		Network:   r.network,
	})
	if err != nil {
		if clierr.CodeOf(err) == clierr.CodeNoQuote {
			return nil, clierr.Wrap(clierr.CodeNoRoute, "no route for pair", err)
		}
		return nil, err
	}
	if q.Route == nil || q.Route.HopCount() == 0 {
		return nil, clierr.New(clierr.CodeNoRoute, "no route for pair")
	}
	return q.Route, nil
}
