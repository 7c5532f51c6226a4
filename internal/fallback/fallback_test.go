package fallback

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/jackc/pgx/v5"

	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/signing"
)

type fakeDevices struct {
	device *domain.UserDevice
}

func (f *fakeDevices) GetByID(ctx context.Context, userID, appDeviceID string) (*domain.UserDevice, error) {
	if f.device == nil {
		return nil, pgx.ErrNoRows
	}
	return f.device, nil
}

type fakeIssuer struct {
	token   string
	err     error
	calls   int
	lastSub string
	lastDev string
}

func (f *fakeIssuer) IssueFallback(ctx context.Context, userID, appDeviceID string) (string, error) {
	f.calls++
	f.lastSub = userID
	f.lastDev = appDeviceID
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// signDeviceToken builds a token the way an enrolled device would: signed
// with the device's own Ed25519 key, issuer "blulok-app", audience
// "blulok-cloud-fallback" — distinct from signing.Service.Sign, which always
// stamps the operator's own "blulok-cloud" issuer and cannot produce this
// shape (a device is an external collaborator, not a signing.Service).
func signDeviceToken(t *testing.T, pub, privSeedB64 string, iatOffset time.Duration, sub, dev string) string {
	t.Helper()
	rawSeed, err := base64.RawURLEncoding.DecodeString(privSeedB64)
	if err != nil {
		t.Fatalf("decoding seed: %v", err)
	}
	priv := ed25519.NewKeyFromSeed(rawSeed)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}

	now := time.Now().Add(iatOffset)
	registered := jwt.Claims{
		Issuer:   "blulok-app",
		Audience: jwt.Audience{"blulok-cloud-fallback"},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Minute)),
	}
	custom := struct {
		Subject string `json:"sub"`
		Device  string `json:"dev"`
	}{Subject: sub, Device: dev}

	token, err := jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestVerify_MalformedTokenRejected(t *testing.T) {
	devices := &fakeDevices{}
	issuer := &fakeIssuer{}
	v := New(devices, issuer, 10*time.Second)

	_, err := v.Verify(context.Background(), "not-a-token")
	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Kind != KindMalformedFallback {
		t.Fatalf("Verify() error = %v, want Kind=%s", err, KindMalformedFallback)
	}
}

func TestVerify_UnknownDeviceRejected(t *testing.T) {
	pub, priv, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	token := signDeviceToken(t, pub, priv, 0, "user-1", "phone-1")

	devices := &fakeDevices{} // no device on file
	issuer := &fakeIssuer{}
	v := New(devices, issuer, 10*time.Second)

	_, err = v.Verify(context.Background(), token)
	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Kind != KindUnknownDevice {
		t.Fatalf("Verify() error = %v, want Kind=%s", err, KindUnknownDevice)
	}
}

func TestVerify_StaleFallbackRejected(t *testing.T) {
	pub, priv, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	token := signDeviceToken(t, pub, priv, -30*time.Second, "user-1", "phone-1")

	devices := &fakeDevices{device: &domain.UserDevice{ID: "dev-1", PublicKeyB64: pub}}
	issuer := &fakeIssuer{}
	v := New(devices, issuer, 10*time.Second)

	_, err = v.Verify(context.Background(), token)
	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Kind != KindStaleFallback {
		t.Fatalf("Verify() error = %v, want Kind=%s", err, KindStaleFallback)
	}
}

func TestVerify_FreshTokenIssuesRoutePass(t *testing.T) {
	pub, priv, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	token := signDeviceToken(t, pub, priv, 0, "user-1", "phone-1")

	devices := &fakeDevices{device: &domain.UserDevice{ID: "dev-1", PublicKeyB64: pub}}
	issuer := &fakeIssuer{token: "route-pass-token"}
	v := New(devices, issuer, 10*time.Second)

	got, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got != "route-pass-token" {
		t.Errorf("Verify() = %q, want %q", got, "route-pass-token")
	}
	if issuer.calls != 1 || issuer.lastSub != "user-1" || issuer.lastDev != "phone-1" {
		t.Errorf("issuer called with sub=%q dev=%q calls=%d, want user-1/phone-1/1", issuer.lastSub, issuer.lastDev, issuer.calls)
	}
}

func TestVerify_DeviceWithNoPublicKeyRejected(t *testing.T) {
	pub, priv, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	token := signDeviceToken(t, pub, priv, 0, "user-1", "phone-1")

	devices := &fakeDevices{device: &domain.UserDevice{ID: "dev-1", PublicKeyB64: ""}}
	issuer := &fakeIssuer{}
	v := New(devices, issuer, 10*time.Second)

	_, err = v.Verify(context.Background(), token)
	var fErr *Error
	if !errors.As(err, &fErr) || fErr.Kind != KindUnknownDevice {
		t.Fatalf("Verify() error = %v, want Kind=%s", err, KindUnknownDevice)
	}
}
