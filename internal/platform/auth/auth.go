// Package auth authenticates operator requests. Two modes, matching how the
// studio is deployed: "dev" trusts a configured identity (local work), "oidc"
// verifies bearer tokens against an OIDC issuer.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bannerstage-labs/bannerstage-go/internal/platform/env"
)

const (
	ModeDev  = "dev"
	ModeOIDC = "oidc"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type Config struct {
	Mode string

	DevSubject string
	DevEmail   string
	DevRoles   []string

	OIDCIssuerURL string
	OIDCClientID  string
	EmailClaim    string
	RolesClaim    string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode:          env.String("STAGE_AUTH_MODE", ModeDev),
		DevSubject:    env.String("STAGE_AUTH_DEV_SUBJECT", "dev-operator"),
		DevEmail:      env.String("STAGE_AUTH_DEV_EMAIL", "dev@localhost"),
		DevRoles:      env.Strings("STAGE_AUTH_DEV_ROLES", []string{"operator"}),
		OIDCIssuerURL: env.String("STAGE_AUTH_OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("STAGE_AUTH_OIDC_CLIENT_ID", ""),
		EmailClaim:    env.String("STAGE_AUTH_OIDC_EMAIL_CLAIM", "email"),
		RolesClaim:    env.String("STAGE_AUTH_OIDC_ROLES_CLAIM", "roles"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("STAGE_AUTH_DEV_SUBJECT is required in dev mode")
		}
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("STAGE_AUTH_OIDC_ISSUER_URL is required in oidc mode")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("STAGE_AUTH_OIDC_CLIENT_ID is required in oidc mode")
		}
	default:
		return errors.New("STAGE_AUTH_MODE must be dev or oidc")
	}
	return nil
}

type ctxKeyIdentity struct{}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}
