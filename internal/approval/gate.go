// Package approval implements the cryptographic approval gate: it verifies
// that an approval command in a change-request comment was issued by a
// registered, trusted automated identity, independently of the platform's
// displayed author field.
package approval

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/noqdev/iambic-sub001/internal/core/domain"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

// DefaultFreshnessWindow bounds replay: a signed approval older (or further
// in the future) than this is rejected as expired.
const DefaultFreshnessWindow = 5 * time.Minute

// Request is one proxy-approval attempt, as parsed from a change-request
// comment with an attached signature.
type Request struct {
	ClaimedLogin  string
	CommentBody   string
	PullRequestID string
	Timestamp     time.Time
	// Signature is the ASN.1 DER ECDSA signature over CanonicalPayload.
	Signature []byte
}

// Decision is the gate's verdict. The gate performs no mutation and is
// idempotent: re-evaluating the same request yields the same decision.
type Decision struct {
	Approved bool
	Reason   errors.Code
	Detail   string
}

func approved() Decision {
	return Decision{Approved: true}
}

func rejected(code errors.Code, detail string) Decision {
	return Decision{Reason: code, Detail: detail}
}

type Gate struct {
	approvers map[string]*ecdsa.PublicKey
	window    time.Duration
	now       func() time.Time
}

// NewGate parses the allow-list's registered public keys up front so a bad
// key surfaces at startup, not at verification time.
func NewGate(approvers []domain.BotApprover, window time.Duration) (*Gate, error) {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	keys := make(map[string]*ecdsa.PublicKey, len(approvers))
	for _, a := range approvers {
		key, err := parsePublicKey(a.PublicKeyPEM)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigValidation,
				fmt.Sprintf("invalid public key for approver '%s'", a.Login))
		}
		keys[a.Login] = key
	}
	return &Gate{approvers: keys, window: window, now: time.Now}, nil
}

// VerifyProxyApproval checks the claimed login against the allow-list,
// bounds the timestamp to the freshness window, and verifies the P-256 /
// SHA-256 signature over the canonical payload. No destructive action ever
// follows a rejection; the normal human-review gate remains in force.
func (g *Gate) VerifyProxyApproval(req Request) Decision {
	key, ok := g.approvers[req.ClaimedLogin]
	if !ok {
		return rejected(errors.CodeApprovalUnknownApprover,
			fmt.Sprintf("login '%s' is not a registered approver", req.ClaimedLogin))
	}

	age := g.now().Sub(req.Timestamp)
	if age > g.window || age < -g.window {
		return rejected(errors.CodeApprovalExpired,
			fmt.Sprintf("approval timestamp outside the %s freshness window", g.window))
	}

	digest := sha256.Sum256(CanonicalPayload(req.PullRequestID, req.CommentBody, req.Timestamp))
	if !ecdsa.VerifyASN1(key, digest[:], req.Signature) {
		return rejected(errors.CodeApprovalBadSignature, "signature does not verify against the registered key")
	}
	return approved()
}

// CanonicalPayload is the exact byte sequence an approver signs. Both sides
// must build it identically, so it is deliberately rigid: the three fields
// newline-joined, timestamp in RFC 3339 UTC.
func CanonicalPayload(pullRequestID, commentBody string, ts time.Time) []byte {
	return []byte(pullRequestID + "\n" + commentBody + "\n" + ts.UTC().Format(time.RFC3339))
}

func parsePublicKey(pemData string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is %T, want *ecdsa.PublicKey", parsed)
	}
	return key, nil
}
