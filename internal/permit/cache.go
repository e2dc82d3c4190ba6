package permit

import (
	"strconv"
	"sync"
	"time"
)

// Signature pairs a produced signature with the identity it was signed for.
type Signature struct {
	Identity  Identity
	Signature []byte
	SignedAt  time.Time
}

// SignatureCache holds at most one signature, the one for the current
// permit. Storing under a new identity replaces the old entry; a lookup with
// a different identity misses. This prevents a signature produced for one
// permit payload from being replayed against another.
type SignatureCache struct {
	mu      sync.Mutex
	current *Signature
	now     func() time.Time
}

func NewSignatureCache() *SignatureCache {
	return &SignatureCache{now: time.Now}
}

// Put stores sig as the signature for identity, displacing any previous one.
func (c *SignatureCache) Put(identity Identity, sig []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = &Signature{Identity: identity, Signature: sig, SignedAt: c.now().UTC()}
}

// Get returns the cached signature if it matches identity exactly and its
// signature deadline has not passed. An expired deadline invalidates the
// entry; submitting it would only buy an on-chain revert.
func (c *SignatureCache) Get(identity Identity) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.Identity != identity {
		return nil, false
	}
	if deadlineExpired(c.current.Identity.SigDeadline, c.now()) {
		c.current = nil
		return nil, false
	}
	return c.current.Signature, true
}

// Clear drops the cached signature.
func (c *SignatureCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

func deadlineExpired(sigDeadline string, now time.Time) bool {
	if sigDeadline == "" {
		return false
	}
	deadline, err := strconv.ParseInt(sigDeadline, 10, 64)
	if err != nil {
		return true
	}
	return now.Unix() >= deadline
}
