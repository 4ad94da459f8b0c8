package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talk2data/internal/domain"
)

// principalEcho writes the resolved principal name as the body.
var principalEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())
	if p.Authenticated {
		w.Header().Set("X-Authenticated", "true")
	}
	_, _ = w.Write([]byte(p.Name))
})

func TestAuthenticate(t *testing.T) {
	v, err := NewHS256Validator(testSecret, "")
	require.NoError(t, err)
	valid := makeToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1", "email": "ana@example.com", "exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name      string
		validator TokenValidator
		opts      AuthOptions
		header    string
		wantCode  int
		wantBody  string
		wantAuth  bool
	}{
		{"valid token", v, AuthOptions{}, "Bearer " + valid, http.StatusOK, "ana@example.com", true},
		{"lowercase scheme", v, AuthOptions{}, "bearer " + valid, http.StatusOK, "ana@example.com", true},
		{"sub claim", v, AuthOptions{NameClaim: "sub"}, "Bearer " + valid, http.StatusOK, "u-1", true},
		{"no token uses default user", v, AuthOptions{}, "", http.StatusOK, domain.DefaultLocalUser, false},
		{"custom default user", nil, AuthOptions{DefaultUser: "demo"}, "", http.StatusOK, "demo", false},
		{"no token required", v, AuthOptions{Required: true}, "", http.StatusUnauthorized, "", false},
		{"invalid token", v, AuthOptions{}, "Bearer nope", http.StatusUnauthorized, "", false},
		{"token without validator", nil, AuthOptions{}, "Bearer " + valid, http.StatusUnauthorized, "", false},
		{"basic auth ignored", v, AuthOptions{}, "Basic abc", http.StatusOK, domain.DefaultLocalUser, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := Authenticate(tc.validator, tc.opts)(principalEcho)
			req := httptest.NewRequest(http.MethodGet, "/v1/schemas", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode == http.StatusOK {
				assert.Equal(t, tc.wantBody, rec.Body.String())
				assert.Equal(t, tc.wantAuth, rec.Header().Get("X-Authenticated") == "true")
			} else {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				assert.Contains(t, rec.Body.String(), `"code":401`)
			}
		})
	}
}
