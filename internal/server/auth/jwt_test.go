package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec("super-secret", 15*time.Minute, opts...)
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return c
}

func TestCreateAndVerify_Success(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	c := newTestCodec(t, WithClock(fixedClock(now)))

	tok, exp, err := c.CreateAccessToken("user-123", map[string]any{"roles": []any{"user"}, "sub": "attacker"})
	if err != nil {
		t.Fatalf("CreateAccessToken error: %v", err)
	}
	if !exp.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("expiresAt = %v, want %v", exp, now.Add(15*time.Minute))
	}

	claims, ok := c.VerifyAccessToken(tok)
	if !ok {
		t.Fatal("VerifyAccessToken rejected a fresh token")
	}
	if claims.Subject != "user-123" {
		t.Fatalf("subject = %q, extra claims must not override sub", claims.Subject)
	}
	if claims.Issuer != DefaultIssuer {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
	if !claims.IssuedAt.Equal(now) || !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("timestamps mismatch: %+v", claims)
	}
	if _, ok := claims.Extra["roles"]; !ok {
		t.Fatalf("extra claim lost: %+v", claims.Extra)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	issued := time.Now().Add(-time.Hour)
	issuer := newTestCodec(t, WithClock(fixedClock(issued)))
	tok, _, err := issuer.CreateAccessToken("u1", nil)
	if err != nil {
		t.Fatalf("CreateAccessToken error: %v", err)
	}

	verifier := newTestCodec(t)
	if _, ok := verifier.VerifyAccessToken(tok); ok {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerify_RejectsTamperingAndGarbage(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	tok, _, err := c.CreateAccessToken("u1", nil)
	if err != nil {
		t.Fatalf("CreateAccessToken error: %v", err)
	}

	other, err := NewCodec("another-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	if _, ok := other.VerifyAccessToken(tok); ok {
		t.Fatal("token signed with a different secret must not verify")
	}

	foreign, err := NewCodec("super-secret", 15*time.Minute, WithIssuer("someone-else"))
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	if _, ok := foreign.VerifyAccessToken(tok); ok {
		t.Fatal("token from another issuer must not verify")
	}

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	for _, bad := range []string{"", "garbage", "a.b.c", tampered} {
		if _, ok := c.VerifyAccessToken(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": DefaultIssuer,
		"sub": "u1",
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString error: %v", err)
	}
	if _, ok := c.VerifyAccessToken(unsigned); ok {
		t.Fatal("alg=none must be rejected")
	}

	hs512 := newTestCodec(t, WithAlgorithm("HS512"))
	tok, _, err := hs512.CreateAccessToken("u1", nil)
	if err != nil {
		t.Fatalf("CreateAccessToken error: %v", err)
	}
	if _, ok := c.VerifyAccessToken(tok); ok {
		t.Fatal("HS256 codec must not accept HS512 tokens")
	}
	if _, ok := hs512.VerifyAccessToken(tok); !ok {
		t.Fatal("HS512 codec must accept its own tokens")
	}
}

func TestVerify_RequiresSubject(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	tok, _, err := c.CreateAccessToken("", nil)
	if err != nil {
		t.Fatalf("CreateAccessToken error: %v", err)
	}
	if _, ok := c.VerifyAccessToken(tok); ok {
		t.Fatal("token without subject must be rejected")
	}
}

func TestNewCodec_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewCodec("", time.Minute); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewCodec("s", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
	if _, err := NewCodec("s", time.Minute, WithAlgorithm("RS256")); err == nil {
		t.Fatal("expected error for non-HMAC algorithm")
	}
}
