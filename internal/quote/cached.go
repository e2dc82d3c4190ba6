package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ggonzalez94/swap-cli/internal/cache"
	"github.com/ggonzalez94/swap-cli/internal/log"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

// DefaultQuoteTTL bounds how long an indicative quote may be served from
// cache; AMM prices drift quickly.
const DefaultQuoteTTL = 3 * time.Second

// CachedService serves indicative quotes from a short-TTL cache. Binding
// quotes always go to the network: they gate an irreversible action.
type CachedService struct {
	inner  QuoteService
	store  *cache.Store
	ttl    time.Duration
	logger log.Logger
}

func NewCachedService(inner QuoteService, store *cache.Store, logger log.Logger) *CachedService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &CachedService{inner: inner, store: store, ttl: DefaultQuoteTTL, logger: logger}
}

func (c *CachedService) Fetch(ctx context.Context, req Request) (model.SwapQuote, error) {
	if req.Binding || c.store == nil {
		return c.inner.Fetch(ctx, req)
	}

	key := cacheKey(req)
	if result, err := c.store.Get(key); err == nil && result.Hit && !result.Stale {
		var cached model.SwapQuote
		if err := json.Unmarshal(result.Value, &cached); err == nil {
			c.logger.Debug("quote served from cache", zap.String("key", key), zap.Duration("age", result.Age))
			return cached, nil
		}
	}

	quote, err := c.inner.Fetch(ctx, req)
	if err != nil {
		return model.SwapQuote{}, err
	}
	if buf, err := json.Marshal(quote); err == nil {
		if err := c.store.Set(key, buf, c.ttl); err != nil {
			c.logger.Debug("quote cache write failed", zap.Error(err))
		}
	}
	return quote, nil
}

func cacheKey(req Request) string {
	return fmt.Sprintf("quote:%d:%s:%s:%s:%s", req.ChainID, req.FromToken.Symbol, req.ToToken.Symbol, req.SwapType, req.Amount)
}
