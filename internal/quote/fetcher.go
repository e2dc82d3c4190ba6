package quote

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/log"
	"github.com/ggonzalez94/swap-cli/internal/model"
)

const (
	// DebounceInterval delays quoting while the user is still typing.
	DebounceInterval = 300 * time.Millisecond
	// PollInterval re-quotes a standing amount to track AMM price drift.
	PollInterval = 3 * time.Second
)

// QuoteService is the slice of Service the fetcher needs; tests substitute
// their own implementation.
type QuoteService interface {
	Fetch(ctx context.Context, req Request) (model.SwapQuote, error)
}

// Input is the user-editable portion of a quote request.
type Input struct {
	FromToken model.Token
	ToToken   model.Token
	Amount    string
	Side      model.EditedSide
	ChainID   int64
	Network   string
}

// SwapType derives the trade direction from the edited side: editing the
// input amount fixes it (ExactIn), editing the output fixes that (ExactOut).
func (in Input) SwapType() model.SwapType {
	if in.Side == model.EditedSideTo {
		return model.SwapTypeExactOut
	}
	return model.SwapTypeExactIn
}

// Snapshot is the fetcher's externally visible state at one point in time.
type Snapshot struct {
	Input   Input
	Loading bool
	Quote   *model.SwapQuote
	Err     error
}

// Fetcher keeps a continuously refreshed quote bound to user input.
//
// Every fetch gets a monotonically increasing request id and its own
// cancellable context; a new fetch cancels the previous in-flight one, and a
// response whose id is below the last applied id is discarded on arrival.
// That discard is the sole defense against out-of-order responses
// overwriting a newer quote.
type Fetcher struct {
	mu sync.Mutex

	service  QuoteService
	logger   log.Logger
	debounce time.Duration
	poll     time.Duration

	input    Input
	snap     Snapshot
	onUpdate func(Snapshot)

	seq     uint64 // last issued request id
	applied uint64 // highest request id whose response was applied
	cancel  context.CancelFunc
	timer   *time.Timer

	pollStop chan struct{}
	closed   bool
}

func NewFetcher(service QuoteService, logger log.Logger) *Fetcher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Fetcher{
		service:  service,
		logger:   logger,
		debounce: DebounceInterval,
		poll:     PollInterval,
	}
}

// SetDebounce overrides the debounce interval; tests shrink it.
func (f *Fetcher) SetDebounce(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debounce = d
}

// SetPoll overrides the poll interval; call before StartPolling.
func (f *Fetcher) SetPoll(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll = d
}

// OnUpdate registers a callback invoked, outside the fetcher's lock, every
// time the snapshot changes.
func (f *Fetcher) OnUpdate(fn func(Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUpdate = fn
}

// Snapshot returns the current fetcher state.
func (f *Fetcher) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// SetInput records a user edit and schedules a debounced indicative fetch.
// Empty or non-positive amounts resolve locally: the quote clears and no
// network request is issued.
func (f *Fetcher) SetInput(in Input) {
	f.mu.Lock()
	f.input = in
	f.snap.Input = in

	if _, positive := model.ParsePositiveAmount(in.Amount); !positive {
		f.stopTimerLocked()
		f.cancelInFlightLocked()
		// Stale responses from before the clear must not resurrect a quote.
		f.seq++
		f.applied = f.seq
		f.snap.Loading = false
		f.snap.Quote = nil
		f.snap.Err = nil
		cb, snap := f.onUpdate, f.snap
		f.mu.Unlock()
		if cb != nil {
			cb(snap)
		}
		return
	}

	f.stopTimerLocked()
	f.timer = time.AfterFunc(f.debounce, func() {
		f.fetch(context.Background(), false)
	})
	f.mu.Unlock()
}

// Refresh performs an immediate fetch and waits for it. With binding set it
// bypasses server-side caching and is never superseded by later edits: the
// returned quote is the one the caller acts on.
func (f *Fetcher) Refresh(ctx context.Context, binding bool) (model.SwapQuote, error) {
	return f.fetch(ctx, binding)
}

// StartPolling re-quotes on a fixed interval while an amount is present and
// no fetch is already in flight. Stop with StopPolling.
func (f *Fetcher) StartPolling() {
	f.mu.Lock()
	if f.pollStop != nil || f.closed {
		f.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	f.pollStop = stop
	interval := f.poll
	f.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.mu.Lock()
				_, positive := model.ParsePositiveAmount(f.input.Amount)
				busy := f.snap.Loading
				f.mu.Unlock()
				if positive && !busy {
					f.fetch(context.Background(), false)
				}
			}
		}
	}()
}

func (f *Fetcher) StopPolling() {
	f.mu.Lock()
	if f.pollStop != nil {
		close(f.pollStop)
		f.pollStop = nil
	}
	f.mu.Unlock()
}

// Close cancels any in-flight fetch and the poller.
func (f *Fetcher) Close() {
	f.StopPolling()
	f.mu.Lock()
	f.closed = true
	f.stopTimerLocked()
	f.cancelInFlightLocked()
	f.mu.Unlock()
}

func (f *Fetcher) fetch(ctx context.Context, binding bool) (model.SwapQuote, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return model.SwapQuote{}, clierr.New(clierr.CodeInternal, "fetcher closed")
	}
	in := f.input
	if _, positive := model.ParsePositiveAmount(in.Amount); !positive {
		f.mu.Unlock()
		return model.SwapQuote{}, clierr.New(clierr.CodeUsage, "amount must be positive")
	}

	f.cancelInFlightLocked()
	f.seq++
	id := f.seq
	fetchCtx, cancel := context.WithCancel(ctx)
	if !binding {
		// A binding fetch gates an irreversible action and is awaited to
		// completion; only indicative fetches are superseded by later edits.
		f.cancel = cancel
	}
	f.snap.Loading = true
	cb, snap := f.onUpdate, f.snap
	f.mu.Unlock()
	if cb != nil {
		cb(snap)
	}

	req := Request{
		FromToken: in.FromToken,
		ToToken:   in.ToToken,
		Amount:    in.Amount,
		SwapType:  in.SwapType(),
		ChainID:   in.ChainID,
		Network:   in.Network,
		Binding:   binding,
	}
	quote, err := f.service.Fetch(fetchCtx, req)
	cancel()

	f.mu.Lock()
	if id < f.applied {
		// A newer request already resolved; this response is stale.
		f.logger.Debug("discarding stale quote response", zap.Uint64("request_id", id), zap.Uint64("applied", f.applied))
		f.mu.Unlock()
		return model.SwapQuote{}, clierr.New(clierr.CodeNoQuote, "quote superseded")
	}
	if isAborted(err) && id != f.seq {
		// Cancelled because a newer fetch superseded this one; that fetch is
		// still in flight and owns the snapshot, including Loading.
		f.mu.Unlock()
		return model.SwapQuote{}, err
	}
	f.applied = id
	f.snap.Loading = false
	switch {
	case err == nil:
		f.snap.Quote = &quote
		f.snap.Err = nil
	case isAborted(err):
		// Aborted requests are not errors; the superseding fetch owns state.
		f.snap.Err = nil
	default:
		f.logger.Warn("quote fetch failed", zap.Uint64("request_id", id), zap.Error(err))
		f.snap.Quote = nil
		f.snap.Err = err
	}
	cb, snap = f.onUpdate, f.snap
	f.mu.Unlock()
	if cb != nil {
		cb(snap)
	}
	return quote, err
}

func (f *Fetcher) cancelInFlightLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func (f *Fetcher) stopTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func isAborted(err error) bool {
	return errors.Is(err, context.Canceled)
}
