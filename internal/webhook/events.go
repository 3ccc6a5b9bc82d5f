// Package webhook parses change-request platform events and the comment
// commands the automation layer reacts to: an apply trigger and a signed
// approval trigger.
package webhook

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/noqdev/iambic-sub001/internal/approval"
	"github.com/noqdev/iambic-sub001/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EventRequestOpened  = "request.opened"
	EventCommentCreated = "comment.created"
)

// Event is the payload shape shared by the platform's webhook deliveries.
type Event struct {
	Type          string    `json:"type" validate:"required,oneof=request.opened comment.created"`
	PullRequestID string    `json:"pull_request_id" validate:"required"`
	Author        string    `json:"author" validate:"required"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func ParseEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, errors.Wrap(err, errors.CodeConfigParseError, "failed to decode webhook event")
	}
	if err := validate.Struct(evt); err != nil {
		return Event{}, errors.Wrap(err, errors.CodeConfigValidation, "webhook event failed validation")
	}
	return evt, nil
}

type CommandKind string

const (
	CommandApply   CommandKind = "apply"
	CommandApprove CommandKind = "approve"
)

const (
	applyTrigger   = "iambic apply"
	approveTrigger = "iambic approve"
	keyIDPrefix    = "key-id:"
	signaturePrefix = "signature:"
)

// Command is a recognized comment command. For approve commands, Approval
// carries everything the gate needs; the signed portion of the comment is
// the body with the signature attachment stripped.
type Command struct {
	Kind     CommandKind
	Scope    string
	Approval *approval.Request
}

// ParseCommand extracts the command from a comment.created event. A comment
// with no recognized trigger yields (nil, nil).
func ParseCommand(evt Event) (*Command, error) {
	if evt.Type != EventCommentCreated {
		return nil, nil
	}
	body := strings.TrimSpace(evt.Body)
	firstLine, _, _ := strings.Cut(body, "\n")
	firstLine = strings.TrimSpace(firstLine)

	switch {
	case strings.HasPrefix(firstLine, approveTrigger):
		return parseApprove(evt, body)
	case strings.HasPrefix(firstLine, applyTrigger):
		scope := strings.TrimSpace(strings.TrimPrefix(firstLine, applyTrigger))
		return &Command{Kind: CommandApply, Scope: scope}, nil
	default:
		return nil, nil
	}
}

func parseApprove(evt Event, body string) (*Command, error) {
	var keyID, signatureB64 string
	var signedLines []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, keyIDPrefix):
			keyID = strings.TrimSpace(strings.TrimPrefix(trimmed, keyIDPrefix))
		case strings.HasPrefix(trimmed, signaturePrefix):
			signatureB64 = strings.TrimSpace(strings.TrimPrefix(trimmed, signaturePrefix))
		default:
			signedLines = append(signedLines, line)
		}
	}
	if keyID == "" || signatureB64 == "" {
		return nil, errors.New(errors.CodeApprovalBadSignature,
			"approval command is missing its key-id or signature attachment")
	}
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeApprovalBadSignature, "approval signature is not valid base64")
	}

	return &Command{
		Kind: CommandApprove,
		Approval: &approval.Request{
			ClaimedLogin:  keyID,
			CommentBody:   strings.TrimSpace(strings.Join(signedLines, "\n")),
			PullRequestID: evt.PullRequestID,
			Timestamp:     evt.CreatedAt,
			Signature:     signature,
		},
	}, nil
}
