package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrStaleTimestamp rejects a payload signed outside the allowed clock
	// window, in either direction.
	ErrStaleTimestamp = errors.New("webhook timestamp outside allowed window")

	// ErrInvalidSignature covers every other verification failure. Malformed
	// headers fail closed with this error rather than surfacing parse
	// details to the caller.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrReplayedEvent rejects an event id that already passed verification
	// inside the current window.
	ErrReplayedEvent = errors.New("webhook event already processed")
)

const (
	// signaturePrefix versions the signature scheme on the wire.
	signaturePrefix = "v1="

	// toleranceWindow bounds acceptable clock skew and replay age.
	toleranceWindow = 5 * time.Minute
)

// Verifier authenticates inbound provider webhooks. The signature is
// HMAC-SHA256 over "{timestamp}.{body}" with a shared secret, hex encoded
// behind a v1= prefix. Verified event ids are remembered for the tolerance
// window so a replayed delivery is rejected even though its signature
// still checks out.
type Verifier struct {
	secret []byte
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
}

// Verify checks the signature and timestamp headers against the raw body
// bytes. The body must be the exact bytes received; any re-serialization
// breaks the signature.
func (v *Verifier) Verify(body []byte, signatureHeader, timestampHeader string) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestampHeader), 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	signedAt := time.Unix(ts, 0)
	skew := v.now().Sub(signedAt)
	if skew > toleranceWindow || skew < -toleranceWindow {
		return ErrStaleTimestamp
	}

	received := strings.TrimSpace(signatureHeader)
	if !strings.HasPrefix(received, signaturePrefix) {
		return ErrInvalidSignature
	}
	receivedRaw, err := hex.DecodeString(strings.TrimPrefix(received, signaturePrefix))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, receivedRaw) {
		return ErrInvalidSignature
	}
	return nil
}

// MarkSeen records a verified event id, rejecting one observed before.
// Entries older than the tolerance window are pruned on each call; beyond
// that age the timestamp check alone blocks the replay.
func (v *Verifier) MarkSeen(eventID string) error {
	if eventID == "" {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	for id, at := range v.seen {
		if now.Sub(at) > toleranceWindow {
			delete(v.seen, id)
		}
	}

	if _, ok := v.seen[eventID]; ok {
		return fmt.Errorf("event %s: %w", eventID, ErrReplayedEvent)
	}
	v.seen[eventID] = now
	return nil
}

// Forget removes an event id from the replay cache. Callers invoke it when
// processing fails after MarkSeen, so the provider's redelivery of that
// event is not rejected as a replay.
func (v *Verifier) Forget(eventID string) {
	if eventID == "" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.seen, eventID)
}

// Sign produces the signature header value for a body at the given time.
// Used by outbound delivery and by tests building authentic payloads.
func (v *Verifier) Sign(body []byte, at time.Time) string {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
