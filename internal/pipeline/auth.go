package pipeline

import (
	"net/http"
	"strings"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/iam"
)

// Authenticator supports three modes (disabled, optional, required) and
// two credential shapes (API key header, bearer JWT). Disabled always
// yields anonymous; optional attaches an identity when present but never
// rejects; required rejects when no credential validates.
type Authenticator struct {
	mode    cmn.AuthMode
	tokens  *iam.TokenIssuer
	revoked *iam.RevocationList
	apiKeys map[string]string // key -> principal, process-local fixture
}

func NewAuthenticator(mode cmn.AuthMode, tokens *iam.TokenIssuer, revoked *iam.RevocationList, apiKeys map[string]string) *Authenticator {
	if apiKeys == nil {
		apiKeys = map[string]string{}
	}
	return &Authenticator{mode: mode, tokens: tokens, revoked: revoked, apiKeys: apiKeys}
}

func (a *Authenticator) Authenticate(r *http.Request) (*iam.Identity, error) {
	if a.mode == cmn.AuthDisabled {
		return &iam.Identity{Principal: "anonymous"}, nil
	}

	if key := r.Header.Get("X-Api-Key"); key != "" {
		if principal, ok := a.apiKeys[key]; ok {
			return &iam.Identity{Principal: principal}, nil
		}
		if a.mode == cmn.AuthRequired {
			return nil, cmn.NewUnauthenticated("unrecognized API key")
		}
	}

	if bearer := bearerToken(r); bearer != "" {
		if a.revoked.IsRevoked(bearer) {
			return nil, cmn.NewUnauthenticated("token revoked")
		}
		ident, err := a.tokens.Verify(bearer)
		if err != nil {
			if a.mode == cmn.AuthRequired {
				return nil, err
			}
			return &iam.Identity{Principal: "anonymous"}, nil
		}
		return ident, nil
	}

	if a.mode == cmn.AuthRequired {
		return nil, cmn.NewUnauthenticated("no credentials supplied")
	}
	return &iam.Identity{Principal: "anonymous"}, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, prefix))
	}
	return ""
}
