package errors

import "strings"

// FailureClass buckets an execution failure by how the swap pipeline should
// react to it: rewind one step, force a re-sign, or surface a terminal error.
type FailureClass string

const (
	ClassRejected    FailureClass = "user_rejected"
	ClassPermitStale FailureClass = "permit_stale"
	ClassBackend     FailureClass = "backend"
	ClassReverted    FailureClass = "onchain_revert"
	ClassUnknown     FailureClass = "unknown"
)

// Phrases emitted by MetaMask, Rabby, WalletConnect, Ledger Live and
// go-ethereum keystores when the user declines a prompt.
var rejectionPhrases = []string{
	"user rejected",
	"user denied",
	"rejected by user",
	"request rejected",
	"user cancelled",
	"user canceled",
	"action_rejected",
	"transaction declined",
	"signature denied",
}

var permitStalePhrases = []string{
	"invalid nonce",
	"nonce already used",
	"signature expired",
	"permit expired",
	"sig deadline",
	"invalid signature",
}

var revertPhrases = []string{
	"execution reverted",
	"transaction reverted",
	"revert",
	"out of gas",
	"insufficient_output_amount",
	"too little received",
	"too much requested",
}

// ClassifySwap maps a failure from the wallet provider, RPC node or a backend
// service into the class the execution state machine branches on. Typed codes
// win over message heuristics.
func ClassifySwap(err error) FailureClass {
	if err == nil {
		return ClassUnknown
	}
	if typed, ok := As(err); ok {
		switch typed.Code {
		case CodeRejected:
			return ClassRejected
		case CodePermitStale:
			return ClassPermitStale
		case CodeReverted:
			return ClassReverted
		case CodeUnavailable, CodeRateLimited, CodeAuth, CodeNoQuote:
			return ClassBackend
		}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range rejectionPhrases {
		if strings.Contains(msg, p) {
			return ClassRejected
		}
	}
	for _, p := range permitStalePhrases {
		if strings.Contains(msg, p) {
			return ClassPermitStale
		}
	}
	for _, p := range revertPhrases {
		if strings.Contains(msg, p) {
			return ClassReverted
		}
	}
	return ClassUnknown
}

// IsRejection reports whether err is a user declining a wallet prompt.
func IsRejection(err error) bool {
	return ClassifySwap(err) == ClassRejected
}
