package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
)

// AuthOptions configures bearer token validation. Tokens must be signed by
// a key from the issuer's JWKS, name Issuer as "iss" and carry Audience in
// "aud".
type AuthOptions struct {
	Issuer   string
	Audience string
	// JWKS endpoint. Empty means discover it from the issuer's
	// /.well-known/openid-configuration.
	JWKSURL string
}

// Authenticator validates the bearer token of every request
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
	log      *zap.Logger
}

var errUnauthorized = errors.New("unauthorized")

// NewAuthenticator sets up token validation. Signing keys are fetched
// lazily and refreshed when a token names an unknown key; ctx bounds
// those fetches and discovery.
func NewAuthenticator(ctx context.Context, opts AuthOptions, log *zap.Logger) (*Authenticator, error) {
	if opts.Issuer == "" || opts.Audience == "" {
		return nil, fmt.Errorf("auth needs an issuer and an audience")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg := &oidc.Config{ClientID: opts.Audience}

	if opts.JWKSURL == "" {
		provider, err := oidc.NewProvider(ctx, opts.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discovering issuer %s: %w", opts.Issuer, err)
		}
		return &Authenticator{verifier: provider.Verifier(cfg), log: log}, nil
	}

	keys := oidc.NewRemoteKeySet(ctx, opts.JWKSURL)
	return &Authenticator{verifier: oidc.NewVerifier(opts.Issuer, keys, cfg), log: log}, nil
}

type subjectKey struct{}

// Subject returns the token subject of an authenticated request
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}

// Middleware rejects requests without a valid bearer token with 401
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			a.reject(w, r, fmt.Errorf("%w: missing bearer token", errUnauthorized))
			return
		}
		tok, err := a.verifier.Verify(r.Context(), raw)
		if err != nil {
			a.reject(w, r, fmt.Errorf("%w: %s", errUnauthorized, err))
			return
		}
		a.log.Debug("authenticated", zap.String("pid", requestID(r.Context())), zap.String("sub", tok.Subject))
		ctx := context.WithValue(r.Context(), subjectKey{}, tok.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Debug("rejected token", zap.String("pid", requestID(r.Context())), zap.Error(err))
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, err.Error(), http.StatusUnauthorized)
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
