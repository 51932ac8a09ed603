package gateway

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"muehle-agent/internal/domain"
	"muehle-agent/internal/infra/config"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name  string
	Roles []string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(tokens))}
	for i, t := range tokens {
		a.entries[i] = authEntry{
			token: []byte(t.Token),
			info:  &ClientInfo{Name: t.Name, Roles: t.Roles},
		}
	}
	return a
}

// Authenticate returns client info if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// JWTAuth accepts HS256 bearer tokens signed with a shared secret. The
// subject becomes the client name and a "roles" claim, if present, the roles.
type JWTAuth struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTAuth creates a JWT authenticator. An empty issuer accepts any issuer.
func NewJWTAuth(secret, issuer string) *JWTAuth {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTAuth{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Authenticate verifies the signature and registered claims of token.
func (a *JWTAuth) Authenticate(token string) (*ClientInfo, error) {
	claims := jwt.MapClaims{}
	parsed, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayAuthFailed, err)
	}
	sub, _ := claims.GetSubject()
	info := &ClientInfo{Name: sub}
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				info.Roles = append(info.Roles, s)
			}
		}
	}
	return info, nil
}

type openAuth struct{}

func (openAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous", Roles: []string{string(domain.AuthRoleAdmin)}}, nil
}

// NewAuthenticator picks the authenticator for cfg.Type. An empty type
// admits every client.
func NewAuthenticator(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Type {
	case "":
		return openAuth{}, nil
	case "static":
		return NewStaticTokenAuth(cfg.Tokens), nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("%w: jwt auth needs a secret", domain.ErrInvalidInput)
		}
		return NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("%w: unknown auth type %q", domain.ErrInvalidInput, cfg.Type)
	}
}

// tokenFrom reads the bearer token from the Authorization header, falling
// back to the token query parameter browsers use for websocket upgrades.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
