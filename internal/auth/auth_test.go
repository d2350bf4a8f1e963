package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/bidroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key")

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(testKey)

	valid, err := a.IssueToken(types.Identity{
		UserId:    "user-1",
		Role:      types.RoleSubcontractor,
		CompanyId: "company-9",
	}, time.Hour)
	require.NoError(t, err)

	noCompany, err := a.IssueToken(types.Identity{UserId: "user-2", Role: types.RoleContractor}, time.Hour)
	require.NoError(t, err)

	expired, err := a.IssueToken(types.Identity{UserId: "user-1", Role: types.RoleContractor}, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewAuthenticator([]byte("other-key")).IssueToken(types.Identity{UserId: "user-1", Role: types.RoleContractor}, time.Hour)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: "user-1",
		roleClaim:   "admin",
		expClaim:    time.Now().Add(time.Hour).Unix(),
	}).SignedString(testKey)
	require.NoError(t, err)

	numericUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: 42,
		roleClaim:   "contractor",
		expClaim:    time.Now().Add(time.Hour).Unix(),
	}).SignedString(testKey)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: "user-1",
		roleClaim:   "contractor",
	}).SignedString(testKey)
	require.NoError(t, err)

	tcases := []struct {
		name       string
		credential string
		expected   types.Identity
		err        error
	}{
		{
			name:       "valid token",
			credential: valid,
			expected:   types.Identity{UserId: "user-1", Role: types.RoleSubcontractor, CompanyId: "company-9"},
		},
		{
			name:       "valid token without company",
			credential: noCompany,
			expected:   types.Identity{UserId: "user-2", Role: types.RoleContractor},
		},
		{name: "missing credential", credential: "", err: ErrMissingCredential},
		{name: "garbage", credential: "not-a-jwt", err: ErrInvalidCredential},
		{name: "expired", credential: expired, err: ErrInvalidCredential},
		{name: "wrong key", credential: otherKey, err: ErrInvalidCredential},
		{name: "unknown role", credential: badRole, err: ErrInvalidCredential},
		{name: "non-string user id", credential: numericUser, err: ErrInvalidCredential},
		{name: "no expiry", credential: noExpiry, err: ErrInvalidCredential},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := a.Authenticate(tc.credential)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Equal(t, types.Identity{}, id, "expected no identity on failure")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, id)
		})
	}
}

func TestCredentialFromRequest(t *testing.T) {
	tcases := []struct {
		name     string
		setup    func(r *http.Request)
		expected string
	}{
		{
			name:     "bearer header",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc.def.ghi") },
			expected: "abc.def.ghi",
		},
		{
			name:     "lowercase scheme",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") },
			expected: "abc",
		},
		{
			name:     "non-bearer header",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
			expected: "",
		},
		{
			name:     "cookie",
			setup:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookieKey, Value: "from-cookie"}) },
			expected: "from-cookie",
		},
		{
			name: "header wins over cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer from-header")
				r.AddCookie(&http.Cookie{Name: TokenCookieKey, Value: "from-cookie"})
			},
			expected: "from-header",
		},
		{
			name:     "nothing",
			setup:    func(r *http.Request) {},
			expected: "",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tc.setup(r)
			assert.Equal(t, tc.expected, CredentialFromRequest(r))
		})
	}
}
