package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const RoleAdmin = "admin"

// Claims is the staff access-token payload issued by the practice identity
// service.
type Claims struct {
	BusinessIDs []string `json:"business_ids,omitempty"`
	Role        string   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated staff member behind a request.
type Identity struct {
	StaffID     uuid.UUID
	BusinessIDs []uuid.UUID
	Role        string
}

// CanAccess reports whether the staff member may act for the business.
// Admins may act for every business.
func (i Identity) CanAccess(businessID uuid.UUID) bool {
	if i.Role == RoleAdmin {
		return true
	}
	for _, id := range i.BusinessIDs {
		if id == businessID {
			return true
		}
	}
	return false
}

// Verifier validates bearer tokens signed with HS256 (shared secret) or
// RS256 (keys from a JWKS endpoint).
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	parser *jwt.Parser
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		jwks:   jwks,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "RS256"}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.Alg() {
	case "HS256":
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 tokens not accepted")
		}
		return v.secret, nil
	case "RS256":
		if v.jwks == nil {
			return nil, errors.New("rs256 tokens not accepted")
		}
		kid, _ := t.Header["kid"].(string)
		return v.jwks.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}

// Verify parses and validates token and maps its claims to an Identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	var claims Claims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.keyFunc); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	staffID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject is not a staff id", ErrInvalidToken)
	}
	ident := Identity{StaffID: staffID, Role: claims.Role}
	for _, raw := range claims.BusinessIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: bad business id %q", ErrInvalidToken, raw)
		}
		ident.BusinessIDs = append(ident.BusinessIDs, id)
	}
	return ident, nil
}

// SignHS256 issues a token for the given claims.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, ident)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(ctxKey{}).(Identity)
	return ident, ok
}

// RequireStaff rejects requests without a valid bearer token and stores the
// caller's Identity in the request context.
func RequireStaff(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			ident, err := v.Verify(raw)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
