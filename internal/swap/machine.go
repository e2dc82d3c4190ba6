package swap

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/log"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/permit"
	"github.com/ggonzalez94/swap-cli/internal/registry"
	"github.com/ggonzalez94/swap-cli/internal/trade"
	"github.com/ggonzalez94/swap-cli/internal/wallet"
)

// PermitPreparer is the slice of the permit service the machine needs.
type PermitPreparer interface {
	Prepare(ctx context.Context, req permit.PrepareRequest) (permit.Data, error)
}

// HistoryStore records confirmed swaps.
type HistoryStore interface {
	SaveSwap(info model.SwapTxInfo) error
}

// Invalidator is notified after a confirmed swap so portfolio and position
// caches can refresh, with the realized USD volume per touched pool.
type Invalidator interface {
	NotifySwap(ctx context.Context, owner string, chainID int64, poolID string, volumeDeltaUSD string) error
}

// Config wires the machine's collaborators. Trade, Chain, Signer, Permits
// and Builder are required; the rest are optional.
type Config struct {
	Trade       *trade.Model
	Chain       wallet.ChainClient
	Signer      wallet.Signer
	Permits     PermitPreparer
	Builder     TxBuilder
	History     HistoryStore
	Invalidator Invalidator
	Logger      log.Logger

	// OnNotice receives user-facing messages (toast equivalents).
	OnNotice func(Notice)
	// ClearAmounts resets the trade inputs on ResetForSwapAgain.
	ClearAmounts func()
	// BalanceRefetch runs BalanceRefetchDelay after confirmation, giving
	// indexers time to catch up.
	BalanceRefetch      func()
	BalanceRefetchDelay time.Duration

	ChainID int64
	Network string
	Now     func() time.Time
}

// Machine drives one swap execution attempt through allowance checking,
// approval, permit signing, transaction building, submission and
// confirmation. All transitions go through Dispatch; there is exactly one
// current trade per machine and no concurrent executions.
type Machine struct {
	mu    sync.Mutex
	state ProgressState
	busy  bool

	cfg      Config
	logger   log.Logger
	now      func() time.Time
	sigCache *permit.SignatureCache

	permitData     *permit.Data
	permitIdentity permit.Identity
	txInfo         *model.SwapTxInfo
	lastErr        error
	lastClass      clierr.FailureClass
}

func NewMachine(cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.BalanceRefetchDelay <= 0 {
		cfg.BalanceRefetchDelay = 5 * time.Second
	}
	return &Machine{
		state:    StateInit,
		cfg:      cfg,
		logger:   logger,
		now:      now,
		sigCache: permit.NewSignatureCache(),
	}
}

func (m *Machine) State() ProgressState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsSwapping reports whether a pipeline step is currently running.
func (m *Machine) IsSwapping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Err returns the recorded terminal error, if the machine is in the error
// state. Wallet rejections never record one.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Machine) FailureClass() clierr.FailureClass {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastClass
}

// TxInfo returns the record of the submitted swap, once a hash exists.
func (m *Machine) TxInfo() *model.SwapTxInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txInfo
}

// Dispatch runs the pipeline step for event. Exactly one step runs at a
// time; a second dispatch while one is in flight is refused.
func (m *Machine) Dispatch(ctx context.Context, event Event) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return clierr.New(clierr.CodeUsage, "a swap step is already in progress")
	}
	m.busy = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	switch event {
	case EventBegin:
		return m.checkAllowance(ctx)
	case EventApprove:
		return m.approve(ctx)
	case EventSign:
		return m.signPermit(ctx)
	case EventSwap:
		return m.executeSwap(ctx)
	default:
		return clierr.New(clierr.CodeUsage, "unknown event "+string(event))
	}
}

// Run advances the machine through the happy path until completion,
// dispatching whichever event the current state calls for. Used by
// non-interactive callers; interactive ones dispatch per user action.
func (m *Machine) Run(ctx context.Context) error {
	for {
		var event Event
		switch m.State() {
		case StateInit:
			event = EventBegin
		case StateNeedsApproval:
			event = EventApprove
		case StateNeedsSignature:
			event = EventSign
		case StateReadyToSwap:
			event = EventSwap
		case StateComplete:
			return nil
		case StateError:
			return m.Err()
		default:
			return clierr.New(clierr.CodeInternal, "machine stalled in state "+string(m.State()))
		}
		if err := m.Dispatch(ctx, event); err != nil {
			return err
		}
	}
}

// ResetForChange clears execution progress after the user edits inputs. The
// quote and any cached permit signature survive.
func (m *Machine) ResetForChange() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateInit
	m.permitData = nil
	m.txInfo = nil
	m.lastErr = nil
	m.lastClass = ""
}

// ResetForSwapAgain clears everything, including the cached signature and
// the entered amounts, ready for a fresh trade.
func (m *Machine) ResetForSwapAgain() {
	m.mu.Lock()
	m.state = StateInit
	m.permitData = nil
	m.permitIdentity = permit.Identity{}
	m.txInfo = nil
	m.lastErr = nil
	m.lastClass = ""
	clear := m.cfg.ClearAmounts
	m.mu.Unlock()

	m.sigCache.Clear()
	if clear != nil {
		clear()
	}
}

func (m *Machine) setState(next ProgressState) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()
	m.logger.Debug("swap progress", zap.String("from", string(prev)), zap.String("to", string(next)))
}

func (m *Machine) requireState(want ProgressState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != want {
		return clierr.New(clierr.CodeUsage, "step requires state "+string(want)+", machine is in "+string(m.state))
	}
	return nil
}

func (m *Machine) notify(level, message string) {
	if m.cfg.OnNotice != nil {
		m.cfg.OnNotice(Notice{Level: level, Message: message})
	}
}

// rewind handles a user declining a wallet prompt: the machine returns to
// the state that preceded the step so the user can retry without
// re-deriving the quote. No terminal error is recorded.
func (m *Machine) rewind(to ProgressState, message string, err error) error {
	m.setState(to)
	m.notify(NoticeInfo, message)
	m.logger.Info("wallet prompt declined", zap.String("rewound_to", string(to)))
	return err
}

// fail transitions to the terminal error state; the user must acknowledge
// via ResetForChange or ResetForSwapAgain before another attempt.
func (m *Machine) fail(err error) error {
	class := clierr.ClassifySwap(err)
	m.mu.Lock()
	m.state = StateError
	m.lastErr = err
	m.lastClass = class
	m.mu.Unlock()
	m.logger.Error("swap execution failed", zap.String("class", string(class)), zap.Error(err))
	switch class {
	case clierr.ClassReverted:
		m.notify(NoticeError, "Transaction reverted on-chain. Try adjusting the amount or slippage.")
	case clierr.ClassPermitStale:
		m.notify(NoticeError, "Permit signature is no longer valid. Please sign again.")
	case clierr.ClassBackend:
		m.notify(NoticeError, "Something went wrong on our side. Please try again or contact support.")
	default:
		m.notify(NoticeError, "Swap failed: "+err.Error())
	}
	return err
}

func (m *Machine) checkAllowance(ctx context.Context) error {
	if err := m.requireState(StateInit); err != nil {
		return err
	}
	if err := m.cfg.Trade.EnsureReady(); err != nil {
		m.notify(NoticeInfo, "Trade is not ready yet.")
		return err
	}
	m.setState(StateCheckingAllowance)

	input := m.cfg.Trade.Input()
	if input.FromToken.IsNative() {
		// Native assets have no ERC-20 contract: nothing to approve or
		// permit.
		m.setState(StateReadyToSwap)
		return nil
	}

	required, err := m.requiredInputBaseUnits()
	if err != nil {
		return m.fail(err)
	}
	allowance, err := m.cfg.Chain.Allowance(ctx,
		common.HexToAddress(input.FromToken.Address),
		m.cfg.Signer.Address(),
		common.HexToAddress(registry.Permit2Address))
	if err != nil {
		return m.fail(err)
	}
	if allowance.Cmp(required) < 0 {
		m.setState(StateNeedsApproval)
		return nil
	}
	next, err := m.refreshPermit(ctx)
	if err != nil {
		return m.fail(err)
	}
	m.setState(next)
	return nil
}

func (m *Machine) approve(ctx context.Context) error {
	if err := m.requireState(StateNeedsApproval); err != nil {
		return err
	}
	m.setState(StateApproving)

	calldata, err := wallet.ApproveCalldata(common.HexToAddress(registry.Permit2Address), maxUint256())
	if err != nil {
		return m.fail(err)
	}
	input := m.cfg.Trade.Input()
	hash, err := m.cfg.Chain.SubmitCall(ctx, m.cfg.Signer,
		common.HexToAddress(input.FromToken.Address), nil, calldata)
	if err != nil {
		if clierr.IsRejection(err) {
			return m.rewind(StateNeedsApproval, "Approval cancelled.", err)
		}
		return m.fail(err)
	}

	m.setState(StateWaitingApproval)
	m.logger.Info("approval submitted", zap.String("tx", hash.Hex()))
	if err := m.cfg.Chain.WaitReceipt(ctx, hash); err != nil {
		return m.fail(err)
	}

	// The approval may have satisfied an existing on-chain permit; re-check
	// before deciding whether a signature is still needed.
	next, err := m.refreshPermit(ctx)
	if err != nil {
		return m.fail(err)
	}
	m.setState(next)
	return nil
}

func (m *Machine) signPermit(ctx context.Context) error {
	if err := m.requireState(StateNeedsSignature); err != nil {
		return err
	}
	m.mu.Lock()
	data := m.permitData
	m.mu.Unlock()
	if data == nil || !data.NeedsPermit || data.TypedData == nil {
		return m.fail(clierr.New(clierr.CodeInternal, "no permit payload to sign"))
	}
	m.setState(StateSigningPermit)

	identity, err := permit.IdentityOf(data.TypedData)
	if err != nil {
		return m.fail(err)
	}
	sig, err := m.cfg.Signer.SignTypedData(*data.TypedData)
	if err != nil {
		if clierr.IsRejection(err) {
			return m.rewind(StateNeedsSignature, "Signature request cancelled.", err)
		}
		return m.fail(clierr.Wrap(clierr.CodeSigner, "sign permit", err))
	}
	m.sigCache.Put(identity, sig)
	m.mu.Lock()
	m.permitIdentity = identity
	m.mu.Unlock()
	m.setState(StateReadyToSwap)
	return nil
}

func (m *Machine) executeSwap(ctx context.Context) error {
	if err := m.requireState(StateReadyToSwap); err != nil {
		return err
	}

	// Binding re-quote: the executed trade must reflect price now, not at
	// the last keystroke. Nothing irreversible has happened yet, so a
	// failure here refuses execution without entering the error state.
	if err := m.cfg.Trade.RefreshBindingQuote(ctx); err != nil {
		m.notify(NoticeError, "Could not confirm the current price. Please try again.")
		return err
	}
	if err := m.cfg.Trade.EnsureReady(); err != nil {
		m.notify(NoticeInfo, "Trade is no longer ready; adjust your amounts and retry.")
		return err
	}

	// Staleness guard: an expired signature deadline would only buy an
	// on-chain revert; force a re-sign instead.
	m.mu.Lock()
	data := m.permitData
	identity := m.permitIdentity
	m.mu.Unlock()
	var permitSig []byte
	if data != nil && data.NeedsPermit {
		sig, ok := m.sigCache.Get(identity)
		if !ok {
			m.setState(StateNeedsSignature)
			m.notify(NoticeInfo, "Permit signature expired. Please sign again.")
			return clierr.New(clierr.CodePermitStale, "permit signature expired before submission")
		}
		permitSig = sig
	}

	m.setState(StateBuildingTx)
	input := m.cfg.Trade.Input()
	params := m.cfg.Trade.Execution()
	req := BuildRequest{
		UserAddress:       m.cfg.Signer.Address().Hex(),
		SwapType:          params.SwapType,
		FromTokenSymbol:   input.FromToken.Symbol,
		ToTokenSymbol:     input.ToToken.Symbol,
		AmountDecimalsStr: params.AmountDecimalsStr,
		LimitAmountStr:    params.LimitAmountDecimalsStr,
		ChainID:           m.cfg.ChainID,
	}
	if params.DynamicSwapFee != nil {
		req.DynamicSwapFee = *params.DynamicSwapFee
	}
	if permitSig != nil {
		req.PermitSignature = "0x" + common.Bytes2Hex(permitSig)
		req.PermitNonce = identity.Nonce
		req.PermitExpiration = identity.Expiration
		req.PermitSigDeadline = identity.SigDeadline
		req.PermitAmount = identity.Amount
	}
	built, err := m.cfg.Builder.Build(ctx, req)
	if err != nil {
		if clierr.ClassifySwap(err) == clierr.ClassPermitStale {
			// Only the signature slot is stale; the trade itself is fine.
			m.sigCache.Clear()
			m.setState(StateNeedsSignature)
			m.notify(NoticeInfo, "Permit signature is no longer valid. Please sign again.")
			return err
		}
		return m.fail(err)
	}

	to, value, calldata, err := RouterCalldata(built)
	if err != nil {
		return m.fail(err)
	}

	m.setState(StateExecutingSwap)
	hash, err := m.cfg.Chain.SubmitCall(ctx, m.cfg.Signer, to, value, calldata)
	if err != nil {
		if clierr.IsRejection(err) {
			return m.rewind(StateReadyToSwap, "Swap cancelled.", err)
		}
		return m.fail(err)
	}

	quote := m.cfg.Trade.Quote()
	info := model.SwapTxInfo{
		TxHash:       hash.Hex(),
		ChainID:      m.cfg.ChainID,
		FromSymbol:   input.FromToken.Symbol,
		ToSymbol:     input.ToToken.Symbol,
		ExplorerURL:  registry.ExplorerTxURL(m.cfg.ChainID, hash.Hex()),
		TouchedPools: built.TouchedPools,
		SubmittedAt:  m.now().UTC(),
	}
	if quote != nil {
		info.FromAmount = quote.FromAmount
		info.ToAmount = quote.ToAmount
		info.VolumeUSD = volumeUSD(quote.FromAmount, input.FromToken.PriceUSD)
	}
	m.mu.Lock()
	m.txInfo = &info
	m.mu.Unlock()

	m.setState(StateWaitingConfirmation)
	if err := m.cfg.Chain.WaitReceipt(ctx, hash); err != nil {
		return m.fail(err)
	}

	m.setState(StateComplete)
	m.notify(NoticeInfo, "Swap confirmed.")
	m.recordSuccess(ctx, info)
	return nil
}

func (m *Machine) recordSuccess(ctx context.Context, info model.SwapTxInfo) {
	if m.cfg.History != nil {
		if err := m.cfg.History.SaveSwap(info); err != nil {
			m.logger.Warn("failed to record swap history", zap.Error(err))
		}
	}
	if m.cfg.Invalidator != nil && len(info.TouchedPools) > 0 {
		delta := splitVolume(info.VolumeUSD, len(info.TouchedPools))
		owner := m.cfg.Signer.Address().Hex()
		for _, poolID := range info.TouchedPools {
			if err := m.cfg.Invalidator.NotifySwap(ctx, owner, info.ChainID, poolID, delta); err != nil {
				m.logger.Warn("cache invalidation failed", zap.String("pool", poolID), zap.Error(err))
			}
		}
	}
	if m.cfg.BalanceRefetch != nil {
		// Indexers lag the chain; refetch balances after a grace period.
		time.AfterFunc(m.cfg.BalanceRefetchDelay, m.cfg.BalanceRefetch)
	}
}

// refreshPermit fetches fresh permit data and decides whether a signature is
// still required, honoring a cached signature for the identical identity.
func (m *Machine) refreshPermit(ctx context.Context) (ProgressState, error) {
	input := m.cfg.Trade.Input()
	params := m.cfg.Trade.Execution()
	amountIn := params.AmountDecimalsStr
	if params.SwapType == model.SwapTypeExactOut {
		amountIn = params.LimitAmountDecimalsStr
	}
	data, err := m.cfg.Permits.Prepare(ctx, permit.PrepareRequest{
		UserAddress:      m.cfg.Signer.Address().Hex(),
		FromTokenAddress: input.FromToken.Address,
		FromTokenSymbol:  input.FromToken.Symbol,
		ToTokenSymbol:    input.ToToken.Symbol,
		ChainID:          m.cfg.ChainID,
		AmountIn:         amountIn,
	})
	if err != nil {
		return StateError, err
	}
	m.mu.Lock()
	m.permitData = &data
	m.mu.Unlock()

	if !data.NeedsPermit {
		return StateReadyToSwap, nil
	}
	identity, err := permit.IdentityOf(data.TypedData)
	if err != nil {
		return StateError, err
	}
	m.mu.Lock()
	m.permitIdentity = identity
	m.mu.Unlock()
	if _, ok := m.sigCache.Get(identity); ok {
		return StateReadyToSwap, nil
	}
	return StateNeedsSignature, nil
}

// requiredInputBaseUnits sizes the allowance check: the fixed input for
// ExactIn, the slippage-bounded maximum input for ExactOut.
func (m *Machine) requiredInputBaseUnits() (*big.Int, error) {
	input := m.cfg.Trade.Input()
	params := m.cfg.Trade.Execution()
	amount := params.AmountDecimalsStr
	if params.SwapType == model.SwapTypeExactOut {
		amount = params.LimitAmountDecimalsStr
	}
	return model.DecimalToBaseUnits(amount, input.FromToken.Decimals)
}

func volumeUSD(amount, priceUSD string) string {
	a, err1 := decimal.NewFromString(amount)
	p, err2 := decimal.NewFromString(priceUSD)
	if err1 != nil || err2 != nil {
		return ""
	}
	return a.Mul(p).String()
}

func splitVolume(volume string, pools int) string {
	if volume == "" || pools <= 0 {
		return "0"
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return "0"
	}
	return v.Div(decimal.NewFromInt(int64(pools))).Round(6).String()
}

func maxUint256() *big.Int {
	v := new(big.Int).Lsh(big.NewInt(1), 256)
	return v.Sub(v, big.NewInt(1))
}
