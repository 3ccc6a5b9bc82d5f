package webhook

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noqdev/iambic-sub001/internal/approval"
	"github.com/noqdev/iambic-sub001/internal/core/domain"
)

func TestParseEventValid(t *testing.T) {
	raw := []byte(`{
		"type": "comment.created",
		"pull_request_id": "42",
		"author": "someone",
		"body": "looks good",
		"created_at": "2026-08-29T10:00:00Z"
	}`)
	evt, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, EventCommentCreated, evt.Type)
	assert.Equal(t, "42", evt.PullRequestID)
}

func TestParseEventRejectsUnknownType(t *testing.T) {
	raw := []byte(`{
		"type": "request.closed",
		"pull_request_id": "42",
		"author": "someone",
		"created_at": "2026-08-29T10:00:00Z"
	}`)
	_, err := ParseEvent(raw)
	require.Error(t, err)
}

func TestParseCommandApplyWithScope(t *testing.T) {
	evt := Event{Type: EventCommentCreated, PullRequestID: "42", Author: "eng", Body: "iambic apply qa-role", CreatedAt: time.Now()}
	cmd, err := ParseCommand(evt)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, CommandApply, cmd.Kind)
	assert.Equal(t, "qa-role", cmd.Scope)
}

func TestParseCommandNoTrigger(t *testing.T) {
	evt := Event{Type: EventCommentCreated, PullRequestID: "42", Author: "eng", Body: "nice change", CreatedAt: time.Now()}
	cmd, err := ParseCommand(evt)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestParseCommandIgnoresNonCommentEvents(t *testing.T) {
	evt := Event{Type: EventRequestOpened, PullRequestID: "42", Author: "eng", Body: "iambic apply", CreatedAt: time.Now()}
	cmd, err := ParseCommand(evt)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestParseCommandApproveMissingSignature(t *testing.T) {
	evt := Event{Type: EventCommentCreated, PullRequestID: "42", Author: "bot", Body: "iambic approve", CreatedAt: time.Now()}
	_, err := ParseCommand(evt)
	require.Error(t, err)
}

// End-to-end through the gate: a signed approve comment parses into a
// request the gate accepts.
func TestParsedApprovalVerifies(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	ts := time.Now()
	signedBody := "iambic approve"
	digest := sha256.Sum256(approval.CanonicalPayload("42", signedBody, ts))
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	body := fmt.Sprintf("%s\nkey-id: release-bot\nsignature: %s", signedBody, base64.StdEncoding.EncodeToString(sig))
	evt := Event{Type: EventCommentCreated, PullRequestID: "42", Author: "release-bot", Body: body, CreatedAt: ts}

	cmd, err := ParseCommand(evt)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	require.Equal(t, CommandApprove, cmd.Kind)
	require.NotNil(t, cmd.Approval)
	assert.Equal(t, "release-bot", cmd.Approval.ClaimedLogin)
	assert.Equal(t, signedBody, cmd.Approval.CommentBody)

	gate, err := approval.NewGate([]domain.BotApprover{{Login: "release-bot", PublicKeyPEM: string(pemData)}}, 0)
	require.NoError(t, err)
	decision := gate.VerifyProxyApproval(*cmd.Approval)
	assert.True(t, decision.Approved)
}
