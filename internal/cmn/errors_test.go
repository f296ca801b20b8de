package cmn

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
)

func TestStatusMapping(t *testing.T) {
	testCases := []struct {
		err  *Error
		want int
	}{
		{NewInvalidArgument("x"), http.StatusBadRequest},
		{NewNotFound("x"), http.StatusNotFound},
		{NewAlreadyExists("x"), http.StatusConflict},
		{NewPreconditionFailed("x"), http.StatusPreconditionFailed},
		{NewPermissionDenied("x"), http.StatusForbidden},
		{NewUnauthenticated("x"), http.StatusUnauthorized},
		{NewResourceExhausted("x"), http.StatusTooManyRequests},
		{NewFailedPrecondition("x"), http.StatusPreconditionFailed},
		{WrapInternal(fmt.Errorf("boom"), "x"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Errorf("%s -> %d, want %d", tc.err.Code(), got, tc.want)
		}
	}
}

func TestAsTaxonomy(t *testing.T) {
	if AsTaxonomy(nil) != nil {
		t.Error("nil should stay nil")
	}

	e := NewNotFound("missing thing")
	if got := AsTaxonomy(e); got.Code() != CodeNotFound {
		t.Errorf("direct error lost its code: %s", got.Code())
	}

	wrapped := errors.Wrap(e, "while looking up")
	if got := AsTaxonomy(wrapped); got.Code() != CodeNotFound {
		t.Errorf("wrapped error lost its code: %s", got.Code())
	}

	bare := fmt.Errorf("some driver exploded")
	if got := AsTaxonomy(bare); got.Code() != CodeInternal {
		t.Errorf("bare error should default to Internal, got %s", got.Code())
	}
}

func TestErrorMessageCarriesCause(t *testing.T) {
	e := WrapInternal(fmt.Errorf("disk full"), "persist payload")
	if msg := e.Error(); msg == "" || !contains(msg, "disk full") {
		t.Errorf("cause missing from message: %q", msg)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
