package service

import (
	"context"
	"testing"

	perrors "github.com/andalan-hq/be-travel-approvals/internal/platform/errors"
	"github.com/andalan-hq/be-travel-approvals/internal/repository"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+62 811-2222", "628112222"},
		{"6281 1-2222", "628112222"},
		{"628112222", "628112222"},
		{"+62-811-2222", "628112222"},
		{"  +62\t8112222 ", "628112222"},
		{"", ""},
		{"+", ""},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestVerifyApproverSession(t *testing.T) {
	v := NewVerifier()
	store := repository.NewMemStore()
	approval := &repository.Approval{ApproverID: "u-1"}

	if err := v.VerifyApprover(context.Background(), store, SessionProof{UserID: "u-1"}, approval); err != nil {
		t.Fatalf("matching session: %v", err)
	}

	err := v.VerifyApprover(context.Background(), store, SessionProof{UserID: "u-2"}, approval)
	if !perrors.IsCode(err, perrors.ErrCodeForbidden) {
		t.Fatalf("mismatched session: err = %v, want Forbidden", err)
	}

	err = v.VerifyApprover(context.Background(), store, SessionProof{}, approval)
	if !perrors.IsCode(err, perrors.ErrCodeForbidden) {
		t.Fatalf("empty session: err = %v, want Forbidden", err)
	}
}

func TestVerifyApproverPhone(t *testing.T) {
	v := NewVerifier()
	store := repository.NewMemStore()

	phone := "+62 811-2222"
	store.PutUser(&repository.User{ID: "u-phone", Phone: &phone})
	store.PutUser(&repository.User{ID: "u-nophone"})

	approval := &repository.Approval{ApproverID: "u-phone"}

	// Formatting differences between the stored and presented number are
	// immaterial; only the digits count.
	if err := v.VerifyApprover(context.Background(), store, PhoneProof{Number: "6281 1-2222"}, approval); err != nil {
		t.Fatalf("matching phone: %v", err)
	}

	err := v.VerifyApprover(context.Background(), store, PhoneProof{Number: "628119999"}, approval)
	if !perrors.IsCode(err, perrors.ErrCodeForbidden) {
		t.Fatalf("mismatched phone: err = %v, want Forbidden", err)
	}

	err = v.VerifyApprover(context.Background(), store, PhoneProof{Number: ""}, approval)
	if !perrors.IsCode(err, perrors.ErrCodeForbidden) {
		t.Fatalf("empty phone: err = %v, want Forbidden", err)
	}

	err = v.VerifyApprover(context.Background(), store, PhoneProof{Number: "628112222"}, &repository.Approval{ApproverID: "u-nophone"})
	if !perrors.IsCode(err, perrors.ErrCodeForbidden) {
		t.Fatalf("approver without phone on record: err = %v, want Forbidden", err)
	}

	err = v.VerifyApprover(context.Background(), store, PhoneProof{Number: "628112222"}, &repository.Approval{ApproverID: "u-missing"})
	if !perrors.IsCode(err, perrors.ErrCodeForbidden) {
		t.Fatalf("unresolvable approver: err = %v, want Forbidden", err)
	}
}
