package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func staffClaims(staff uuid.UUID, role string, businesses ...uuid.UUID) Claims {
	c := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	for _, b := range businesses {
		c.BusinessIDs = append(c.BusinessIDs, b.String())
	}
	return c
}

func TestHS256Verify(t *testing.T) {
	staff, biz := uuid.New(), uuid.New()
	token, err := SignHS256(staffClaims(staff, "staff", biz), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}

	ident, err := NewVerifier("test-secret", nil).Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ident.StaffID != staff || !ident.CanAccess(biz) || ident.CanAccess(uuid.New()) {
		t.Fatalf("unexpected identity %+v", ident)
	}

	if _, err := NewVerifier("wrong-secret", nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	c := staffClaims(uuid.New(), "staff")
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token, _ := SignHS256(c, "s")
	if _, err := NewVerifier("s", nil).Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestAdminCanAccessAnyBusiness(t *testing.T) {
	if !(Identity{Role: RoleAdmin}).CanAccess(uuid.New()) {
		t.Fatal("admin should access every business")
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	staff := uuid.New()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, staffClaims(staff, RoleAdmin))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ident, err := NewVerifier("", NewJWKSClient(srv.URL, time.Minute)).Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ident.StaffID != staff || ident.Role != RoleAdmin {
		t.Fatalf("unexpected identity %+v", ident)
	}
}

func TestRequireStaff(t *testing.T) {
	v := NewVerifier("s", nil)
	var got Identity
	h := RequireStaff(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	staff := uuid.New()
	token, _ := SignHS256(staffClaims(staff, "staff"), "s")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || got.StaffID != staff {
		t.Fatalf("expected identity in context, code=%d ident=%+v", rec.Code, got)
	}
}
