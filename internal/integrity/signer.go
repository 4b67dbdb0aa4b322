package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ownaday/daybook/internal/config"
)

// Signer derives the tamper-evident fingerprint stored on every claim.
// The digest covers the fields whose mutation must invalidate previously
// issued certificates: the day, the owning account, the price paid and the
// claim's creation instant. Content fields are excluded so cosmetic edits
// keep existing certificates valid.
type Signer struct {
	secret []byte
}

func NewSigner(cfg config.Config) *Signer {
	return &Signer{secret: []byte(cfg.FingerprintSecret)}
}

func NewSignerWithSecret(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Fingerprint(day string, ownerID snowflake.ID, pricePaid int64, createdAt time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%d|%d", day, ownerID.String(), pricePaid, createdAt.UTC().UnixNano())
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether candidate matches the fingerprint derived from the
// given inputs, using a constant-time comparison.
func (s *Signer) Verify(candidate string, day string, ownerID snowflake.ID, pricePaid int64, createdAt time.Time) bool {
	expected := s.Fingerprint(day, ownerID, pricePaid, createdAt)
	return hmac.Equal([]byte(candidate), []byte(expected))
}
