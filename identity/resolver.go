package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-payments/core"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderUserID        = "X-User-Id"
	defaultLeeway       = 30 * time.Second
)

var ErrSessionVerifierNotConfigured = errors.New("identity: session verifier is not configured")

// UserResolver extracts the authenticated user id from a request. An empty id
// with a nil error means the request is anonymous.
type UserResolver interface {
	ResolveUserID(r *http.Request) (string, error)
}

type UserResolverFunc func(r *http.Request) (string, error)

func (f UserResolverFunc) ResolveUserID(r *http.Request) (string, error) {
	return f(r)
}

type SessionConfig struct {
	Secret     []byte
	PublicKey  *rsa.PublicKey
	Issuer     string
	Audience   string
	CookieName string
	Leeway     time.Duration
	Now        func() time.Time
}

// SessionConfigFrom builds a verifier config from the service identity
// section. A PEM public key switches verification to RS256.
func SessionConfigFrom(cfg core.IdentityConfig) (SessionConfig, error) {
	out := SessionConfig{
		Secret:     []byte(strings.TrimSpace(cfg.SessionSecret)),
		Issuer:     strings.TrimSpace(cfg.Issuer),
		Audience:   strings.TrimSpace(cfg.Audience),
		CookieName: strings.TrimSpace(cfg.CookieName),
	}
	if pem := strings.TrimSpace(cfg.SessionPublicKey); pem != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return SessionConfig{}, fmt.Errorf("identity: parse session public key: %w", err)
		}
		out.PublicKey = key
	}
	return out, nil
}

// SessionTokenResolver verifies a session JWT carried as a bearer token or in
// the session cookie and returns its subject.
type SessionTokenResolver struct {
	cfg    SessionConfig
	parser *jwt.Parser
}

func NewSessionTokenResolver(cfg SessionConfig) (*SessionTokenResolver, error) {
	if len(cfg.Secret) == 0 && cfg.PublicKey == nil {
		return nil, ErrSessionVerifierNotConfigured
	}
	if strings.TrimSpace(cfg.CookieName) == "" {
		cfg.CookieName = core.DefaultIdentityCookieName
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultLeeway
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	methods := []string{jwt.SigningMethodHS256.Alg()}
	if cfg.PublicKey != nil {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &SessionTokenResolver{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// ResolveUserID returns the token subject. Missing or invalid tokens resolve to
// an anonymous request; the caller decides whether that is a 401.
func (r *SessionTokenResolver) ResolveUserID(req *http.Request) (string, error) {
	if r == nil || r.parser == nil {
		return "", ErrSessionVerifierNotConfigured
	}
	raw := r.tokenFromRequest(req)
	if raw == "" {
		return "", nil
	}
	subject, err := r.Verify(raw)
	if err != nil {
		return "", nil
	}
	return subject, nil
}

// Verify parses and validates a raw session token and returns its subject.
func (r *SessionTokenResolver) Verify(raw string) (string, error) {
	if r == nil || r.parser == nil {
		return "", ErrSessionVerifierNotConfigured
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := r.parser.ParseWithClaims(strings.TrimSpace(raw), claims, r.keyFunc); err != nil {
		return "", fmt.Errorf("identity: invalid session token: %w", err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("identity: session token subject is required")
	}
	return subject, nil
}

func (r *SessionTokenResolver) keyFunc(token *jwt.Token) (any, error) {
	if r.cfg.PublicKey != nil {
		return r.cfg.PublicKey, nil
	}
	return r.cfg.Secret, nil
}

func (r *SessionTokenResolver) tokenFromRequest(req *http.Request) string {
	if req == nil {
		return ""
	}
	if header := strings.TrimSpace(req.Header.Get(HeaderAuthorization)); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := req.Cookie(r.cfg.CookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// StaticUserResolver trusts a user id header set by an upstream proxy, or
// returns a fixed user id when one is configured.
type StaticUserResolver struct {
	UserID string
	Header string
}

func (r StaticUserResolver) ResolveUserID(req *http.Request) (string, error) {
	if userID := strings.TrimSpace(r.UserID); userID != "" {
		return userID, nil
	}
	if req == nil {
		return "", nil
	}
	header := strings.TrimSpace(r.Header)
	if header == "" {
		header = HeaderUserID
	}
	return strings.TrimSpace(req.Header.Get(header)), nil
}

var (
	_ UserResolver = (*SessionTokenResolver)(nil)
	_ UserResolver = StaticUserResolver{}
	_ UserResolver = UserResolverFunc(nil)
)
