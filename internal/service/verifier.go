package service

import (
	"context"
	"strings"

	"github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
)

// CallerProof is the identity evidence attached to an approval action. The
// two variants are equally valid but distinct proofs for the same approver
// account: an authenticated session, or ownership of the approver's on-record
// phone number (used by externally triggered actions, e.g. a chat agent).
type CallerProof interface {
	isCallerProof()
}

// SessionProof identifies the caller via the authenticated session.
type SessionProof struct {
	UserID string
}

func (SessionProof) isCallerProof() {}

// PhoneProof identifies the caller via a phone number. No session check is
// performed on this path; the phone match is sufficient and necessary.
type PhoneProof struct {
	Number string
}

func (PhoneProof) isCallerProof() {}

// NormalizePhone strips the leading plus, whitespace and dashes so numbers
// captured through different channels compare equal.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case '+', '-', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Verifier resolves "who is calling" for an approval action.
type Verifier struct{}

// NewVerifier creates a verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyApprover checks that the caller proof matches the approval's fixed
// approver. Any mismatch is Forbidden. The user lookup runs against the
// caller's transaction when invoked inside one.
func (v *Verifier) VerifyApprover(ctx context.Context, users repository.UserLookup, proof CallerProof, approval *repository.Approval) error {
	switch p := proof.(type) {
	case SessionProof:
		if p.UserID == "" || p.UserID != approval.ApproverID {
			return errors.Forbidden("caller is not the assigned approver")
		}
		return nil

	case PhoneProof:
		caller := NormalizePhone(p.Number)
		if caller == "" {
			return errors.Forbidden("phone number is required for phone verification")
		}

		approver, err := users.GetUser(ctx, approval.ApproverID)
		if err != nil {
			return errors.Forbidden("approver account could not be resolved")
		}
		if approver.Phone == nil || NormalizePhone(*approver.Phone) == "" {
			return errors.Forbidden("approver has no phone number on record")
		}
		if NormalizePhone(*approver.Phone) != caller {
			return errors.Forbidden("phone number does not match the approver's record")
		}
		return nil

	default:
		return errors.Forbidden("no caller proof supplied")
	}
}
