package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CustodiaClaims are the JWT claims expected by the Custodia API.
// Subject carries the principal id; Capabilities carries the
// capability tags granted to the bearer.
type CustodiaClaims struct {
	jwt.RegisteredClaims
	Capabilities []string `json:"capabilities"`
}

// JWTValidator validates bearer tokens and extracts claims.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator with the given HMAC secret.
func NewJWTValidator(secret []byte) *JWTValidator {
	if len(secret) == 0 {
		return nil
	}
	return &JWTValidator{secret: secret}
}

// Validate parses and verifies the token string.
func (v *JWTValidator) Validate(tokenStr string) (*CustodiaClaims, error) {
	claims := &CustodiaClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	return claims, nil
}

// NewMiddleware returns HTTP middleware that authenticates requests via
// Bearer tokens and injects the resulting Principal into the context.
// The principal's capabilities are the union of the token's capability
// claims and the roster capabilities registered for its subject, so a
// deployment roster can grant standing roles without reissuing tokens.
// Fail closed: requests without a valid token are rejected.
func NewMiddleware(validator *JWTValidator, roster map[string][]Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "Authorization header required")
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenStr == authHeader {
				writeUnauthorized(w, "Bearer token required")
				return
			}

			if validator == nil {
				writeUnauthorized(w, "Authentication not configured")
				return
			}

			claims, err := validator.Validate(tokenStr)
			if err != nil {
				writeUnauthorized(w, "Invalid or expired token")
				return
			}
			if claims.Subject == "" {
				writeUnauthorized(w, "Token subject is required")
				return
			}

			principal := &BasePrincipal{
				ID:           claims.Subject,
				Capabilities: mergeCapabilities(claims.Capabilities, roster[claims.Subject]),
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// mergeCapabilities unions the token's capability claims with the roster
// capabilities for the subject, dropping duplicates.
func mergeCapabilities(claimed []string, rostered []Capability) []Capability {
	caps := make([]Capability, 0, len(claimed)+len(rostered))
	seen := make(map[Capability]bool, len(claimed)+len(rostered))
	add := func(c Capability) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		caps = append(caps, c)
	}
	for _, c := range claimed {
		add(Capability(c))
	}
	for _, c := range rostered {
		add(c)
	}
	return caps
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"type":"https://docket.systems/errors/401","title":"Unauthorized","status":401,"detail":%q}`+"\n", detail)
}
