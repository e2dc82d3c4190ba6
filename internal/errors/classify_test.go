package errors

import (
	"errors"
	"testing"
)

func TestClassifySwapHeuristics(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"metamask rejection", errors.New("MetaMask Tx Signature: User denied transaction signature."), ClassRejected},
		{"generic rejection", errors.New("request rejected by wallet"), ClassRejected},
		{"action rejected code", errors.New("ACTION_REJECTED: user declined"), ClassRejected},
		{"revert", errors.New("execution reverted: TOO_LITTLE_RECEIVED"), ClassReverted},
		{"out of gas", errors.New("out of gas"), ClassReverted},
		{"stale nonce", errors.New("permit error: invalid nonce"), ClassPermitStale},
		{"expired signature", errors.New("signature expired at 1700000000"), ClassPermitStale},
		{"unknown", errors.New("something odd happened"), ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySwap(tc.err); got != tc.want {
				t.Fatalf("ClassifySwap(%q) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifySwapTypedCodesWin(t *testing.T) {
	err := New(CodeRejected, "execution reverted")
	if got := ClassifySwap(err); got != ClassRejected {
		t.Fatalf("typed code should beat message heuristics, got %s", got)
	}
	backend := Wrap(CodeUnavailable, "build transaction", errors.New("boom"))
	if got := ClassifySwap(backend); got != ClassBackend {
		t.Fatalf("expected backend class, got %s", got)
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != CodeSuccess {
		t.Fatal("nil error should map to success")
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Fatal("untyped error should map to internal")
	}
	if CodeOf(New(CodeNoRoute, "no route")) != CodeNoRoute {
		t.Fatal("typed error should surface its code")
	}
}
