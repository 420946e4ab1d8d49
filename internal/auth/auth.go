// Package auth resolves the calling user from an OIDC bearer token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"

	"agentchain/backend/internal/config"
	"agentchain/backend/internal/logging"
)

const (
	// OwnerHeader selects the owner when the dev bypass is active.
	OwnerHeader = "X-Owner-ID"
	// DevOwner is used in bypass mode when no OwnerHeader is sent.
	DevOwner = "dev"
)

type ownerKey struct{}

// WithOwner returns a copy of ctx carrying the owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the owner id set by RequireAuth, or "".
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// Auth verifies bearer tokens issued by the configured OpenID Connect
// provider. The token subject becomes the owner id.
type Auth struct {
	verifier   *oidc.IDTokenVerifier
	logger     *logging.Logger
	authBypass bool
}

// New creates a new Auth object using values from the application
// configuration. Outside the dev bypass it contacts the provider's discovery
// endpoint.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Auth, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Auth{
		logger:     logger.With("component", "auth"),
		authBypass: cfg.IsDev() && cfg.DevModeBypass,
	}
	if a.authBypass {
		a.logger.Warn("authentication bypass enabled", "default_owner", DevOwner)
		return a, nil
	}

	if cfg.Auth.Issuer == "" {
		return nil, errors.New("auth configuration is incomplete: issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}
	// access tokens usually carry an API audience rather than the client id
	a.verifier = provider.Verifier(&oidc.Config{
		ClientID:          cfg.Auth.ClientID,
		SkipClientIDCheck: true,
	})
	return a, nil
}

// NewWithVerifier builds an Auth around an existing verifier.
func NewWithVerifier(verifier *oidc.IDTokenVerifier, logger *logging.Logger) *Auth {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Auth{verifier: verifier, logger: logger.With("component", "auth")}
}

// RequireAuth is middleware that resolves the owner id and stores it in the
// request context. Requests without a valid bearer token get 401.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := a.resolveOwner(r)
		if err != nil {
			a.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
			writeUnauthorized(w, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

func (a *Auth) resolveOwner(r *http.Request) (string, error) {
	if a.authBypass {
		if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" {
			return owner, nil
		}
		return DevOwner, nil
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("missing bearer token")
	}
	token, err := a.verifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return "", errors.New("invalid token: " + err.Error())
	}
	if strings.TrimSpace(token.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return token.Subject, nil
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "about:blank",
		"title":  "Unauthorized",
		"status": http.StatusUnauthorized,
		"detail": detail,
	})
}
