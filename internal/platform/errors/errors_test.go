package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NotFound("approval", "a-1")); got != ErrCodeNotFound {
		t.Fatalf("CodeOf = %s, want NOT_FOUND", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != ErrCodeInternal {
		t.Fatalf("plain error CodeOf = %s, want INTERNAL", got)
	}

	// Wrapped coded errors keep their code.
	wrapped := Wrap(Conflict("busy"), ErrCodeInternal, "outer")
	if !IsCode(wrapped, ErrCodeInternal) {
		t.Fatalf("wrap must carry the outer code, got %s", CodeOf(wrapped))
	}
	if !stderrors.Is(wrapped, wrapped) {
		t.Fatal("wrapped error lost identity")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("user", "u-1"), http.StatusNotFound},
		{Forbidden("no"), http.StatusForbidden},
		{BadRequest("bad"), http.StatusBadRequest},
		{InvalidInput("amount", "must be positive"), http.StatusBadRequest},
		{Conflict("race"), http.StatusConflict},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	inner := stderrors.New("inner")
	err := Wrap(inner, ErrCodeInternal, "context")
	if !stderrors.Is(err, inner) {
		t.Fatal("Wrap must preserve the error chain")
	}
}
