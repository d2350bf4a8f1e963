package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/bidroom/internal/types"
)

const (
	userIdClaim    = "user-id"
	roleClaim      = "role"
	companyIdClaim = "company-id"
	expClaim       = "exp"

	// TokenCookieKey is the cookie the REST layer stores the session token in.
	TokenCookieKey = "token"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Authenticator resolves a handshake credential to an identity. It verifies
// tokens with the same HS256 key the REST layer signs them with.
type Authenticator struct {
	signingKey []byte
}

func NewAuthenticator(signingKey []byte) *Authenticator {
	return &Authenticator{signingKey: signingKey}
}

func (a *Authenticator) Authenticate(credential string) (types.Identity, error) {
	if credential == "" {
		return types.Identity{}, ErrMissingCredential
	}

	token, err := a.verifyToken(credential)
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: invalid token claims", ErrInvalidCredential)
	}

	// Valid only checks exp when present; a token must carry one
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return types.Identity{}, fmt.Errorf("%w: missing or expired exp claim", ErrInvalidCredential)
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return types.Identity{}, fmt.Errorf("%w: invalid user id claim", ErrInvalidCredential)
	}

	roleStr, _ := claims[roleClaim].(string)
	role, err := types.ParseRole(roleStr)
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	companyId, _ := claims[companyIdClaim].(string)

	return types.Identity{
		UserId:    userId,
		Role:      role,
		CompanyId: companyId,
	}, nil
}

// IssueToken signs a token for id. The REST layer owns login; this exists
// for tooling and tests that need a valid handshake credential.
func (a *Authenticator) IssueToken(id types.Identity, exp time.Duration) (string, error) {
	claims := jwt.MapClaims{
		userIdClaim: id.UserId,
		roleClaim:   string(id.Role),
		expClaim:    time.Now().Add(exp).Unix(),
	}
	if id.CompanyId != "" {
		claims[companyIdClaim] = id.CompanyId
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.signingKey)
}

func (a *Authenticator) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

// CredentialFromRequest extracts the bearer token from the handshake
// request, preferring the Authorization header over the session cookie.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if c, err := r.Cookie(TokenCookieKey); err == nil {
		return c.Value
	}

	return ""
}
