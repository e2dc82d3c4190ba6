package invalidate

import (
	"context"
	"strings"

	"github.com/ggonzalez94/swap-cli/internal/httpx"
)

// Client notifies the cache invalidation collaborator after a confirmed
// swap so portfolio and position caches refresh, carrying an optimistic
// volume delta per touched pool.
type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type notifyRequest struct {
	Owner             string            `json:"owner"`
	ChainID           int64             `json:"chainId"`
	PoolID            string            `json:"poolId"`
	OptimisticUpdates optimisticUpdates `json:"optimisticUpdates"`
}

type optimisticUpdates struct {
	VolumeDelta string `json:"volumeDelta"`
}

func (c *Client) NotifySwap(ctx context.Context, owner string, chainID int64, poolID string, volumeDeltaUSD string) error {
	payload := notifyRequest{
		Owner:             owner,
		ChainID:           chainID,
		PoolID:            poolID,
		OptimisticUpdates: optimisticUpdates{VolumeDelta: volumeDeltaUSD},
	}
	return httpx.PostJSON(ctx, c.http, c.baseURL+"/invalidate", payload, nil, nil)
}
