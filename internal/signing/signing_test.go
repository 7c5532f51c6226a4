package signing

import (
	"strings"
	"testing"
	"time"
)

func testService(t *testing.T) *Service {
	t.Helper()
	pub, priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	svc, err := New(priv, pub)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return svc
}

type testClaims struct {
	Foo string `json:"foo"`
}

func TestSignVerifyRoundTrip(t *testing.T) {
	svc := testService(t)

	token, jti, issuedAt, err := svc.Sign(testClaims{Foo: "bar"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if jti == "" {
		t.Fatal("Sign() returned empty jti")
	}
	if issuedAt.IsZero() {
		t.Fatal("Sign() returned zero issuedAt")
	}

	var claims testClaims
	if err := svc.Verify(token, "", &claims); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Foo != "bar" {
		t.Errorf("claims.Foo = %q, want %q", claims.Foo, "bar")
	}
}

func TestVerify_TamperedSignatureFails(t *testing.T) {
	svc := testService(t)

	token, _, _, err := svc.Sign(testClaims{Foo: "bar"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	// Flip a character in the signature segment (last dot-separated part).
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a 3-segment compact token, got %d segments", len(parts))
	}
	sig := []byte(parts[2])
	sig[0] = flipChar(sig[0])
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	var claims testClaims
	err = svc.Verify(tampered, "", &claims)
	if err == nil {
		t.Fatal("Verify() succeeded on a tampered token")
	}
}

func flipChar(b byte) byte {
	if b == 'A' {
		return 'B'
	}
	return 'A'
}

func TestVerify_Expired(t *testing.T) {
	svc := testService(t)

	token, _, _, err := svc.Sign(testClaims{Foo: "bar"}, -time.Hour)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	var claims testClaims
	err = svc.Verify(token, "", &claims)
	var sigErr *Error
	if err == nil || !asError(err, &sigErr) || sigErr.Kind != KindExpired {
		t.Fatalf("Verify() error = %v, want Kind=%s", err, KindExpired)
	}
}

func TestVerify_BadAudience(t *testing.T) {
	svc := testService(t)

	token, _, _, err := svc.Sign(testClaims{Foo: "bar"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	var claims testClaims
	err = svc.Verify(token, "some-other-audience", &claims)
	var sigErr *Error
	if err == nil || !asError(err, &sigErr) || sigErr.Kind != KindBadAudience {
		t.Fatalf("Verify() error = %v, want Kind=%s", err, KindBadAudience)
	}
}

func TestVerifyWithKey_DeviceSignedToken(t *testing.T) {
	devicePub, devicePriv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	deviceSvc, err := New(devicePriv, devicePub)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	token, _, _, err := deviceSvc.Sign(testClaims{Foo: "device"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	var claims testClaims
	// Issuer is "blulok-cloud" (the device's own Service.Issuer constant),
	// so verifying with the expected device issuer must succeed.
	if err := VerifyWithKey(token, devicePub, Issuer, "", &claims); err != nil {
		t.Fatalf("VerifyWithKey() error: %v", err)
	}
	if claims.Foo != "device" {
		t.Errorf("claims.Foo = %q, want %q", claims.Foo, "device")
	}
}

func TestVerifyWithKey_WrongIssuerFails(t *testing.T) {
	devicePub, devicePriv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	deviceSvc, err := New(devicePriv, devicePub)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	token, _, _, err := deviceSvc.Sign(testClaims{Foo: "device"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	var claims testClaims
	err = VerifyWithKey(token, devicePub, "blulok-app", "", &claims)
	var sigErr *Error
	if err == nil || !asError(err, &sigErr) || sigErr.Kind != KindBadIssuer {
		t.Fatalf("VerifyWithKey() error = %v, want Kind=%s", err, KindBadIssuer)
	}
}

func TestPeekUnverified_ReadsClaimsWithoutSignatureCheck(t *testing.T) {
	svc := testService(t)

	token, _, _, err := svc.Sign(testClaims{Foo: "peek-me"}, time.Hour)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	var claims testClaims
	if err := PeekUnverified(token, &claims); err != nil {
		t.Fatalf("PeekUnverified() error: %v", err)
	}
	if claims.Foo != "peek-me" {
		t.Errorf("claims.Foo = %q, want %q", claims.Foo, "peek-me")
	}
}

func TestNew_RejectsBadKeyLength(t *testing.T) {
	_, err := New("tooshort", "tooshort")
	if err == nil {
		t.Fatal("New() succeeded with an obviously too-short key")
	}
}

func TestNew_RejectsMismatchedKeypair(t *testing.T) {
	_, priv1, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	pub2, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}

	_, err = New(priv1, pub2)
	if err == nil {
		t.Fatal("New() succeeded with a private key not matching the public key")
	}
}

// asError is a small errors.As shim kept local to avoid importing errors
// in every test that just wants a typed Kind check.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
