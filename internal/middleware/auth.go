package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"talk2data/internal/domain"
)

// AuthOptions tune Authenticate.
type AuthOptions struct {
	// NameClaim is the claim used as principal name (default "email",
	// falling back to sub).
	NameClaim string
	// Required rejects requests without a bearer token. When false they run
	// as DefaultUser.
	Required    bool
	DefaultUser string
	Logger      *slog.Logger
}

// Authenticate resolves the request principal from a bearer token. A token
// that fails validation is always rejected with 401. validator may be nil
// when no identity provider is configured; every request then runs as the
// default user unless Required is set.
func Authenticate(validator TokenValidator, opts AuthOptions) func(http.Handler) http.Handler {
	if opts.NameClaim == "" {
		opts.NameClaim = "email"
	}
	if opts.DefaultUser == "" {
		opts.DefaultUser = domain.DefaultLocalUser
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, hasToken := bearerToken(r)
			switch {
			case hasToken && validator != nil:
				claims, err := validator.Validate(r.Context(), token)
				if err != nil {
					logger.Debug("token rejected", "error", err, "request_id", RequestIDFromContext(r.Context()))
					writeUnauthorized(w, "invalid bearer token")
					return
				}
				name := claims.Name(opts.NameClaim)
				if name == "" {
					writeUnauthorized(w, "token has no subject")
					return
				}
				ctx := domain.WithPrincipal(r.Context(), domain.ContextPrincipal{Name: name, Authenticated: true})
				next.ServeHTTP(w, r.WithContext(ctx))
			case hasToken || opts.Required:
				writeUnauthorized(w, "unauthorized: provide a valid bearer token")
			default:
				ctx := domain.WithPrincipal(r.Context(), domain.ContextPrincipal{Name: opts.DefaultUser})
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": msg,
	})
}
