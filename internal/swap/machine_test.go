package swap

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/log"
	"github.com/ggonzalez94/swap-cli/internal/model"
	"github.com/ggonzalez94/swap-cli/internal/permit"
	"github.com/ggonzalez94/swap-cli/internal/quote"
	"github.com/ggonzalez94/swap-cli/internal/routing"
	"github.com/ggonzalez94/swap-cli/internal/trade"
	"github.com/ggonzalez94/swap-cli/internal/wallet"
)

var (
	testUSDC = model.Token{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, PriceUSD: "1"}
	testWETH = model.Token{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18}
	testETH  = model.Token{Symbol: "ETH", Address: model.NativeAssetAddress, Decimals: 18, PriceUSD: "2000"}
)

type quoteFunc func(ctx context.Context, req quote.Request) (model.SwapQuote, error)

func (f quoteFunc) Fetch(ctx context.Context, req quote.Request) (model.SwapQuote, error) {
	return f(ctx, req)
}

type resolverFunc func(ctx context.Context, from, to model.Token, chainID int64) (*model.SwapRoute, error)

func (f resolverFunc) FindBestRoute(ctx context.Context, from, to model.Token, chainID int64) (*model.SwapRoute, error) {
	return f(ctx, from, to, chainID)
}

type feeFunc func(ctx context.Context, fromSymbol, toSymbol string, chainID int64) (int64, error)

func (f feeFunc) HopFee(ctx context.Context, fromSymbol, toSymbol string, chainID int64) (int64, error) {
	return f(ctx, fromSymbol, toSymbol, chainID)
}

type submittedCall struct {
	to    common.Address
	value *big.Int
	data  []byte
}

type fakeChain struct {
	mu          sync.Mutex
	allowance   *big.Int
	submitErrs  []error
	receiptErrs []error
	submitted   []submittedCall
	nextHash    byte
}

func (c *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (c *fakeChain) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allowance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(c.allowance), nil
}

func (c *fakeChain) SubmitCall(_ context.Context, _ wallet.Signer, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.submitErrs) > 0 {
		err := c.submitErrs[0]
		c.submitErrs = c.submitErrs[1:]
		if err != nil {
			return common.Hash{}, err
		}
	}
	c.submitted = append(c.submitted, submittedCall{to: to, value: value, data: data})
	c.nextHash++
	return common.Hash{c.nextHash}, nil
}

func (c *fakeChain) WaitReceipt(context.Context, common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.receiptErrs) > 0 {
		err := c.receiptErrs[0]
		c.receiptErrs = c.receiptErrs[1:]
		return err
	}
	return nil
}

func (c *fakeChain) submittedCalls() []submittedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]submittedCall(nil), c.submitted...)
}

type fakeSigner struct {
	signTypedErrs []error
	typedCalls    int
}

func (s *fakeSigner) Address() common.Address {
	return common.HexToAddress("0x1111111111111111111111111111111111111111")
}

func (s *fakeSigner) SignTx(_ *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return tx, nil
}

func (s *fakeSigner) SignTypedData(apitypes.TypedData) ([]byte, error) {
	s.typedCalls++
	if len(s.signTypedErrs) > 0 {
		err := s.signTypedErrs[0]
		s.signTypedErrs = s.signTypedErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

type fakePermits struct {
	data  permit.Data
	err   error
	calls int
}

func (p *fakePermits) Prepare(context.Context, permit.PrepareRequest) (permit.Data, error) {
	p.calls++
	if p.err != nil {
		return permit.Data{}, p.err
	}
	return p.data, nil
}

type fakeBuilder struct {
	built   BuiltTx
	errs    []error
	lastReq BuildRequest
	calls   int
}

func (b *fakeBuilder) Build(_ context.Context, req BuildRequest) (BuiltTx, error) {
	b.calls++
	b.lastReq = req
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		if err != nil {
			return BuiltTx{}, err
		}
	}
	return b.built, nil
}

type fakeHistory struct {
	mu    sync.Mutex
	saved []model.SwapTxInfo
}

func (h *fakeHistory) SaveSwap(info model.SwapTxInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, info)
	return nil
}

type notification struct {
	poolID string
	volume string
}

type fakeInvalidator struct {
	mu       sync.Mutex
	notified []notification
}

func (i *fakeInvalidator) NotifySwap(_ context.Context, _ string, _ int64, poolID, volumeDeltaUSD string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.notified = append(i.notified, notification{poolID: poolID, volume: volumeDeltaUSD})
	return nil
}

func permitTypedData(sigDeadline string) *apitypes.TypedData {
	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"PermitSingle": {
				{Name: "details", Type: "PermitDetails"},
				{Name: "spender", Type: "address"},
				{Name: "sigDeadline", Type: "uint256"},
			},
			"PermitDetails": {
				{Name: "token", Type: "address"},
				{Name: "amount", Type: "uint160"},
				{Name: "expiration", Type: "uint48"},
				{Name: "nonce", Type: "uint48"},
			},
		},
		PrimaryType: "PermitSingle",
		Domain: apitypes.TypedDataDomain{
			Name:              "Permit2",
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: "0x000000000022D473030F116dDEE9F6B43aC78BA3",
		},
		Message: apitypes.TypedDataMessage{
			"details": map[string]interface{}{
				"token":      testUSDC.Address,
				"amount":     "1000000000",
				"expiration": "9999999999",
				"nonce":      "4",
			},
			"spender":     "0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af",
			"sigDeadline": sigDeadline,
		},
	}
}

func builtTxFixture() BuiltTx {
	return BuiltTx{
		To:           "0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af",
		Commands:     "0x0b00",
		Inputs:       []string{"0x1234", "0xabcd"},
		Deadline:     "9999999999",
		TouchedPools: []string{"pool-1"},
	}
}

type fixture struct {
	machine     *Machine
	chain       *fakeChain
	signer      *fakeSigner
	permits     *fakePermits
	builder     *fakeBuilder
	history     *fakeHistory
	invalidator *fakeInvalidator
	trade       *trade.Model
	notices     []Notice
}

func newFixture(t *testing.T, from model.Token, allowance *big.Int, permits *fakePermits) *fixture {
	t.Helper()

	route := &model.SwapRoute{Hops: []model.RouteHop{
		{Token0: from.Symbol, Token1: testWETH.Symbol, PoolID: "pool-1", FeeTier: 500},
	}}
	svc := quoteFunc(func(_ context.Context, req quote.Request) (model.SwapQuote, error) {
		return model.SwapQuote{
			SwapType:   req.SwapType,
			FromSymbol: req.FromToken.Symbol,
			ToSymbol:   req.ToToken.Symbol,
			FromAmount: req.Amount,
			ToAmount:   "0.5",
			Route:      route,
			Binding:    req.Binding,
			FetchedAt:  time.Now().UTC(),
		}, nil
	})
	fetcher := quote.NewFetcher(svc, log.NewNopLogger())
	fetcher.SetDebounce(time.Hour)
	t.Cleanup(fetcher.Close)
	aggregator := routing.NewAggregator(
		resolverFunc(func(context.Context, model.Token, model.Token, int64) (*model.SwapRoute, error) {
			return route, nil
		}),
		feeFunc(func(context.Context, string, string, int64) (int64, error) { return 30, nil }),
		log.NewNopLogger(),
	)
	tradeModel := trade.NewModel(fetcher, aggregator, nil, log.NewNopLogger())
	tradeModel.SetSlippage(decimal.NewFromFloat(0.5))

	in := quote.Input{
		FromToken: from,
		ToToken:   testWETH,
		Amount:    "1000",
		Side:      model.EditedSideFrom,
		ChainID:   1,
		Network:   "mainnet",
	}
	fetcher.SetInput(in)
	aggregator.Recompute(context.Background(), in.FromToken, in.ToToken, in.ChainID)
	if _, err := fetcher.Refresh(context.Background(), false); err != nil {
		t.Fatalf("seed quote: %v", err)
	}

	f := &fixture{
		chain:       &fakeChain{allowance: allowance},
		signer:      &fakeSigner{},
		permits:     permits,
		builder:     &fakeBuilder{built: builtTxFixture()},
		history:     &fakeHistory{},
		invalidator: &fakeInvalidator{},
		trade:       tradeModel,
	}
	f.machine = NewMachine(Config{
		Trade:       tradeModel,
		Chain:       f.chain,
		Signer:      f.signer,
		Permits:     f.permits,
		Builder:     f.builder,
		History:     f.history,
		Invalidator: f.invalidator,
		Logger:      log.NewNopLogger(),
		OnNotice:    func(n Notice) { f.notices = append(f.notices, n) },
		ChainID:     1,
		Network:     "mainnet",
	})
	return f
}

func needsSignaturePermits() *fakePermits {
	return &fakePermits{data: permit.Data{NeedsPermit: true, TypedData: permitTypedData("9999999999")}}
}

func TestMachineHappyPathWithApprovalAndSignature(t *testing.T) {
	f := newFixture(t, testUSDC, big.NewInt(0), needsSignaturePermits())

	if err := f.machine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.machine.State() != StateComplete {
		t.Fatalf("state = %s, want complete", f.machine.State())
	}

	calls := f.chain.submittedCalls()
	if len(calls) != 2 {
		t.Fatalf("expected approval and swap submissions, got %d", len(calls))
	}
	if calls[0].to != common.HexToAddress(testUSDC.Address) {
		t.Fatalf("approval must target the input token contract, got %s", calls[0].to.Hex())
	}
	if calls[1].to != common.HexToAddress("0x66a9893cC07D91D95644AEDD05D03f95e1dBA8Af") {
		t.Fatalf("swap must target the built router address, got %s", calls[1].to.Hex())
	}

	if f.signer.typedCalls != 1 {
		t.Fatalf("expected one permit signature, got %d", f.signer.typedCalls)
	}
	if f.builder.lastReq.PermitSignature == "" || f.builder.lastReq.PermitNonce != "4" {
		t.Fatalf("build request missing permit fields: %+v", f.builder.lastReq)
	}
	if f.builder.lastReq.AmountDecimalsStr != "1000" {
		t.Fatalf("build request amount = %s", f.builder.lastReq.AmountDecimalsStr)
	}

	info := f.machine.TxInfo()
	if info == nil || info.TxHash == "" {
		t.Fatal("missing tx info after completion")
	}
	if info.VolumeUSD != "1000" {
		t.Fatalf("volume = %s, want 1000", info.VolumeUSD)
	}
	if len(f.history.saved) != 1 || f.history.saved[0].TxHash != info.TxHash {
		t.Fatalf("history not recorded: %+v", f.history.saved)
	}
	if len(f.invalidator.notified) != 1 || f.invalidator.notified[0].poolID != "pool-1" || f.invalidator.notified[0].volume != "1000" {
		t.Fatalf("invalidation not sent: %+v", f.invalidator.notified)
	}
}

func TestMachineSufficientAllowanceSkipsApproval(t *testing.T) {
	f := newFixture(t, testUSDC, maxUint256(), needsSignaturePermits())

	if err := f.machine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(f.chain.submittedCalls()); got != 1 {
		t.Fatalf("expected only the swap submission, got %d", got)
	}
}

func TestMachineNativeInputSkipsApprovalAndPermit(t *testing.T) {
	permits := needsSignaturePermits()
	f := newFixture(t, testETH, nil, permits)

	if err := f.machine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if permits.calls != 0 {
		t.Fatalf("native input must not hit the permit service, got %d calls", permits.calls)
	}
	if f.signer.typedCalls != 0 {
		t.Fatal("native input must not sign a permit")
	}
	if f.builder.lastReq.PermitSignature != "" {
		t.Fatal("build request must carry no permit for native input")
	}
	if f.machine.State() != StateComplete {
		t.Fatalf("state = %s, want complete", f.machine.State())
	}
}

func TestMachineExistingPermitSkipsSignature(t *testing.T) {
	permits := &fakePermits{data: permit.Data{
		NeedsPermit:    false,
		ExistingPermit: &permit.ExistingPermit{Amount: "1000000000", Expiration: 9999999999, Nonce: 3},
	}}
	f := newFixture(t, testUSDC, maxUint256(), permits)

	if err := f.machine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.signer.typedCalls != 0 {
		t.Fatal("existing permit must not trigger a signature prompt")
	}
	if f.machine.State() != StateComplete {
		t.Fatalf("state = %s, want complete", f.machine.State())
	}
}

// A declined approval rewinds without recording an error, so the user can
// retry in place.
func TestMachineApprovalRejectionRewinds(t *testing.T) {
	f := newFixture(t, testUSDC, big.NewInt(0), needsSignaturePermits())
	f.chain.submitErrs = []error{clierr.New(clierr.CodeRejected, "user rejected transaction")}

	ctx := context.Background()
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if f.machine.State() != StateNeedsApproval {
		t.Fatalf("state = %s, want needs_approval", f.machine.State())
	}

	err := f.machine.Dispatch(ctx, EventApprove)
	if !clierr.IsRejection(err) {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if f.machine.State() != StateNeedsApproval {
		t.Fatalf("state = %s, want needs_approval after rejection", f.machine.State())
	}
	if f.machine.Err() != nil {
		t.Fatalf("rejection must not record a terminal error, got %v", f.machine.Err())
	}
	if f.machine.IsSwapping() {
		t.Fatal("machine should not report a step in flight")
	}

	// The retry succeeds from the rewound state.
	if err := f.machine.Run(ctx); err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if f.machine.State() != StateComplete {
		t.Fatalf("state = %s, want complete", f.machine.State())
	}
}

func TestMachineSignatureRejectionRewinds(t *testing.T) {
	f := newFixture(t, testUSDC, maxUint256(), needsSignaturePermits())
	f.signer.signTypedErrs = []error{clierr.New(clierr.CodeRejected, "user denied message signature")}

	ctx := context.Background()
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if f.machine.State() != StateNeedsSignature {
		t.Fatalf("state = %s, want needs_signature", f.machine.State())
	}

	err := f.machine.Dispatch(ctx, EventSign)
	if !clierr.IsRejection(err) {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if f.machine.State() != StateNeedsSignature || f.machine.Err() != nil {
		t.Fatalf("state = %s err = %v after rejection", f.machine.State(), f.machine.Err())
	}
}

// An expired signature deadline forces a re-sign instead of buying an
// on-chain revert.
func TestMachineExpiredSigDeadlineForcesResign(t *testing.T) {
	permits := &fakePermits{data: permit.Data{NeedsPermit: true, TypedData: permitTypedData("1700000000")}}
	f := newFixture(t, testUSDC, maxUint256(), permits)

	ctx := context.Background()
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.machine.Dispatch(ctx, EventSign); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if f.machine.State() != StateReadyToSwap {
		t.Fatalf("state = %s, want ready_to_swap", f.machine.State())
	}

	err := f.machine.Dispatch(ctx, EventSwap)
	if clierr.CodeOf(err) != clierr.CodePermitStale {
		t.Fatalf("expected permit-stale error, got %v", err)
	}
	if f.machine.State() != StateNeedsSignature {
		t.Fatalf("state = %s, want needs_signature", f.machine.State())
	}
	if f.machine.Err() != nil {
		t.Fatalf("staleness is recoverable, no terminal error expected, got %v", f.machine.Err())
	}
	if f.builder.calls != 0 {
		t.Fatal("stale signature must be caught before the build call")
	}
}

func TestMachineBuilderReportsStaleSignature(t *testing.T) {
	f := newFixture(t, testUSDC, maxUint256(), needsSignaturePermits())
	f.builder.errs = []error{clierr.New(clierr.CodePermitStale, "permit signature no longer valid: nonce already used")}

	ctx := context.Background()
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.machine.Dispatch(ctx, EventSign); err != nil {
		t.Fatalf("sign: %v", err)
	}
	err := f.machine.Dispatch(ctx, EventSwap)
	if clierr.CodeOf(err) != clierr.CodePermitStale {
		t.Fatalf("expected permit-stale error, got %v", err)
	}
	if f.machine.State() != StateNeedsSignature {
		t.Fatalf("state = %s, want needs_signature", f.machine.State())
	}

	// Re-signing and retrying completes; the cleared cache forces the prompt.
	if err := f.machine.Run(ctx); err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if f.signer.typedCalls != 2 {
		t.Fatalf("expected a second signature prompt, got %d", f.signer.typedCalls)
	}
}

func TestMachineRevertedSwapIsTerminal(t *testing.T) {
	f := newFixture(t, testUSDC, maxUint256(), needsSignaturePermits())
	f.chain.receiptErrs = []error{clierr.New(clierr.CodeReverted, "transaction reverted on-chain")}

	err := f.machine.Run(context.Background())
	if clierr.CodeOf(err) != clierr.CodeReverted {
		t.Fatalf("expected revert error, got %v", err)
	}
	if f.machine.State() != StateError {
		t.Fatalf("state = %s, want error", f.machine.State())
	}
	if f.machine.Err() == nil {
		t.Fatal("terminal failure must record an error")
	}
	if f.machine.FailureClass() != clierr.ClassReverted {
		t.Fatalf("failure class = %s, want %s", f.machine.FailureClass(), clierr.ClassReverted)
	}
	if len(f.history.saved) != 0 {
		t.Fatal("reverted swap must not be recorded as history")
	}
}

func TestMachineRefusesWhenTradeNotReady(t *testing.T) {
	g := newUnreadyFixture(t)
	err := g.machine.Dispatch(context.Background(), EventBegin)
	if clierr.CodeOf(err) != clierr.CodeNotReady {
		t.Fatalf("expected not-ready refusal, got %v", err)
	}
	if g.machine.State() != StateInit {
		t.Fatalf("state = %s, refusal must not advance the machine", g.machine.State())
	}
	if g.machine.Err() != nil {
		t.Fatalf("refusal must not record a terminal error, got %v", g.machine.Err())
	}
}

func newUnreadyFixture(t *testing.T) *fixture {
	t.Helper()
	svc := quoteFunc(func(_ context.Context, req quote.Request) (model.SwapQuote, error) {
		return model.SwapQuote{}, clierr.New(clierr.CodeNoQuote, "no quote")
	})
	fetcher := quote.NewFetcher(svc, log.NewNopLogger())
	fetcher.SetDebounce(time.Hour)
	t.Cleanup(fetcher.Close)
	aggregator := routing.NewAggregator(
		resolverFunc(func(context.Context, model.Token, model.Token, int64) (*model.SwapRoute, error) {
			return nil, clierr.New(clierr.CodeNoRoute, "no route")
		}),
		feeFunc(func(context.Context, string, string, int64) (int64, error) { return 0, nil }),
		log.NewNopLogger(),
	)
	tradeModel := trade.NewModel(fetcher, aggregator, nil, log.NewNopLogger())

	f := &fixture{
		chain:   &fakeChain{},
		signer:  &fakeSigner{},
		permits: needsSignaturePermits(),
		builder: &fakeBuilder{built: builtTxFixture()},
		trade:   tradeModel,
	}
	f.machine = NewMachine(Config{
		Trade:   tradeModel,
		Chain:   f.chain,
		Signer:  f.signer,
		Permits: f.permits,
		Builder: f.builder,
		Logger:  log.NewNopLogger(),
		ChainID: 1,
		Network: "mainnet",
	})
	return f
}

func TestMachineDispatchRequiresMatchingState(t *testing.T) {
	f := newFixture(t, testUSDC, big.NewInt(0), needsSignaturePermits())

	for _, event := range []Event{EventApprove, EventSign, EventSwap} {
		if err := f.machine.Dispatch(context.Background(), event); clierr.CodeOf(err) != clierr.CodeUsage {
			t.Fatalf("event %s from init should be refused, got %v", event, err)
		}
	}
	if f.machine.State() != StateInit {
		t.Fatalf("state = %s, refused events must not move the machine", f.machine.State())
	}
}

func TestMachineResetForChangeKeepsSignatureCache(t *testing.T) {
	f := newFixture(t, testUSDC, maxUint256(), needsSignaturePermits())

	ctx := context.Background()
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.machine.Dispatch(ctx, EventSign); err != nil {
		t.Fatalf("sign: %v", err)
	}

	f.machine.ResetForChange()
	if f.machine.State() != StateInit {
		t.Fatalf("state = %s, want init after reset", f.machine.State())
	}

	// The unchanged permit identity reuses the cached signature: begin lands
	// straight on ready_to_swap with no second prompt.
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if f.machine.State() != StateReadyToSwap {
		t.Fatalf("state = %s, want ready_to_swap via cached signature", f.machine.State())
	}
	if f.signer.typedCalls != 1 {
		t.Fatalf("cached signature should be reused, got %d prompts", f.signer.typedCalls)
	}
}

func TestMachineResetForSwapAgainClearsSignatureCache(t *testing.T) {
	cleared := false
	f := newFixture(t, testUSDC, maxUint256(), needsSignaturePermits())
	f.machine.cfg.ClearAmounts = func() { cleared = true }

	ctx := context.Background()
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.machine.Dispatch(ctx, EventSign); err != nil {
		t.Fatalf("sign: %v", err)
	}

	f.machine.ResetForSwapAgain()
	if !cleared {
		t.Fatal("ResetForSwapAgain must clear the trade amounts")
	}
	if err := f.machine.Dispatch(ctx, EventBegin); err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if f.machine.State() != StateNeedsSignature {
		t.Fatalf("state = %s, want needs_signature after full reset", f.machine.State())
	}
}

func TestSplitVolume(t *testing.T) {
	cases := []struct {
		volume string
		pools  int
		want   string
	}{
		{"1000", 1, "1000"},
		{"1000", 2, "500"},
		{"", 2, "0"},
		{"100", 3, "33.333333"},
		{"100", 0, "0"},
	}
	for _, tc := range cases {
		if got := splitVolume(tc.volume, tc.pools); got != tc.want {
			t.Errorf("splitVolume(%q, %d) = %s, want %s", tc.volume, tc.pools, got, tc.want)
		}
	}
}

func TestRouterCalldata(t *testing.T) {
	built := builtTxFixture()
	to, value, calldata, err := RouterCalldata(built)
	if err != nil {
		t.Fatalf("RouterCalldata: %v", err)
	}
	if to != common.HexToAddress(built.To) {
		t.Fatalf("target = %s", to.Hex())
	}
	if value.Sign() != 0 {
		t.Fatalf("value = %s, want 0", value)
	}
	if len(calldata) < 4 {
		t.Fatal("calldata missing selector")
	}

	built.Value = "1500000000000000000"
	_, value, _, err = RouterCalldata(built)
	if err != nil {
		t.Fatalf("RouterCalldata with value: %v", err)
	}
	if value.String() != "1500000000000000000" {
		t.Fatalf("value = %s", value)
	}
}

func TestRouterCalldataRejectsMalformedPayloads(t *testing.T) {
	bad := builtTxFixture()
	bad.To = "not-an-address"
	if _, _, _, err := RouterCalldata(bad); err == nil {
		t.Fatal("invalid target must be rejected")
	}

	bad = builtTxFixture()
	bad.Commands = "0xzz"
	if _, _, _, err := RouterCalldata(bad); err == nil {
		t.Fatal("invalid commands hex must be rejected")
	}

	bad = builtTxFixture()
	bad.Deadline = "soon"
	if _, _, _, err := RouterCalldata(bad); err == nil {
		t.Fatal("invalid deadline must be rejected")
	}
}
