package jwt

import (
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("vN8#kQw2$mXr7!pZt4&bGc9@hLf5%dYs")

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Secret == nil {
		cfg.Secret = testSecret
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = time.Minute
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateAndParseRoundTrip(t *testing.T) {
	m := newTestManager(t, Config{Issuer: "authcore", Audience: "api"})

	access, err := m.CreateAccess("user-1", "contributor")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.Subject)
	}
	if claims.Role != "contributor" {
		t.Fatalf("expected role contributor, got %q", claims.Role)
	}
}

func TestParseAccessRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t, Config{})

	other := newTestManager(t, Config{Secret: []byte("aJ3$wRt8!xKm2#qZv6&nBc4@pGf9%hLd")})
	token, err := other.CreateAccess("user-1", "user")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong-secret token to be rejected")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, Config{})

	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims)
	token, err := tok.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unsigned token to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	m := newTestManager(t, Config{
		Issuer:   "authcore",
		Audience: "api",
		Leeway:   30 * time.Second,
	})

	access, err := m.CreateAccess("user-1", "user")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(claims AccessClaims) string {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
		signed, err := tok.SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return signed
	}

	badIssuer := sign(AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseAccess(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	badAudience := sign(AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseAccess(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := sign(AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := m.ParseAccess(withinLeeway); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := sign(AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}})
	if _, err := m.ParseAccess(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessRejectsFarFutureIAT(t *testing.T) {
	m := newTestManager(t, Config{MaxFutureIAT: 10 * time.Minute})

	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected far-future iat to be rejected")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: 0, Secret: testSecret}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute}); err == nil {
		t.Fatal("expected missing secret to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, Secret: testSecret, Leeway: 5 * time.Minute}); err == nil {
		t.Fatal("expected excessive leeway to be rejected")
	}
}
