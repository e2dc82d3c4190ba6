package swap

// ProgressState is the lifecycle of one execution attempt.
type ProgressState string

const (
	StateInit                ProgressState = "init"
	StateCheckingAllowance   ProgressState = "checking_allowance"
	StateNeedsApproval       ProgressState = "needs_approval"
	StateApproving           ProgressState = "approving"
	StateWaitingApproval     ProgressState = "waiting_approval"
	StateNeedsSignature      ProgressState = "needs_signature"
	StateSigningPermit       ProgressState = "signing_permit"
	StateReadyToSwap         ProgressState = "ready_to_swap"
	StateBuildingTx          ProgressState = "building_tx"
	StateExecutingSwap       ProgressState = "executing_swap"
	StateWaitingConfirmation ProgressState = "waiting_confirmation"
	StateComplete            ProgressState = "complete"
	StateError               ProgressState = "error"
)

// Event is the machine's single dispatch vocabulary. Each event triggers one
// pipeline step; internal progression within a step (e.g. approving →
// waiting_approval) happens without further events.
type Event string

const (
	// EventBegin runs the allowance/permit check from init.
	EventBegin Event = "begin"
	// EventApprove submits the ERC-20 approval from needs_approval.
	EventApprove Event = "approve"
	// EventSign acquires the Permit2 signature from needs_signature.
	EventSign Event = "sign"
	// EventSwap builds, submits and confirms the router transaction from
	// ready_to_swap.
	EventSwap Event = "swap"
)

// Notice is a user-facing message emitted during execution. Error-level
// notices carry the raw message for support triage; info-level notices are
// neutral (e.g. a wallet prompt was declined).
type Notice struct {
	Level   string
	Message string
}

const (
	NoticeInfo  = "info"
	NoticeError = "error"
)
