// Package fallback implements the Fallback Verifier (C6): converting a
// device-signed emergency token into a Route Pass when the device could not
// reach the cloud to request one normally, per spec.md §4.6.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/signing"
)

// deviceIssuer and fallbackAudience are the issuer/audience a device signs
// its own emergency token with — distinct from the operator's own Issuer,
// since the device, not the cloud, produced this token.
const (
	deviceIssuer     = "blulok-app"
	fallbackAudience = "blulok-cloud-fallback"
)

// Kind enumerates the fallback verification failure modes named in spec.md §4.6.
type Kind string

const (
	KindMalformedFallback Kind = "malformed_fallback"
	KindUnknownDevice     Kind = "unknown_device"
	KindStaleFallback     Kind = "stale_fallback"
)

// Error wraps a fallback verification failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type peekClaims struct {
	Subject string `json:"sub"`
	Dev     string `json:"dev"`
}

type verifiedClaims struct {
	IssuedAt *int64 `json:"iat"`
}

// DeviceLookup is the capability this verifier needs from the device table,
// per spec.md §9's "declared constructor dependencies" design note.
// *store.DeviceStore satisfies it; tests use a fake.
type DeviceLookup interface {
	GetByID(ctx context.Context, userID, appDeviceID string) (*domain.UserDevice, error)
}

// Issuer is the capability this verifier needs to mint the bootstrap Route
// Pass once a fallback token has been authenticated. *routepass.Orchestrator
// satisfies it.
type Issuer interface {
	IssueFallback(ctx context.Context, userID, appDeviceID string) (token string, err error)
}

// Verifier converts a device-signed emergency token into a Route Pass.
type Verifier struct {
	devices DeviceLookup
	issuer  Issuer
	skew    time.Duration
}

// New creates a Verifier. skew is the allowed iat clock drift (default 10s).
func New(devices DeviceLookup, issuer Issuer, skew time.Duration) *Verifier {
	return &Verifier{devices: devices, issuer: issuer, skew: skew}
}

// Verify runs the five steps of spec.md §4.6 and, on success, issues and
// returns a Route Pass with an empty audience list.
func (v *Verifier) Verify(ctx context.Context, raw string) (token string, err error) {
	var peeked peekClaims
	if err := signing.PeekUnverified(raw, &peeked); err != nil {
		return "", &Error{Kind: KindMalformedFallback, Err: err}
	}
	if peeked.Subject == "" || peeked.Dev == "" {
		return "", &Error{Kind: KindMalformedFallback, Err: errors.New("missing sub or dev claim")}
	}

	device, err := v.devices.GetByID(ctx, peeked.Subject, peeked.Dev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &Error{Kind: KindUnknownDevice, Err: errors.New("no device record for sub/dev")}
	}
	if err != nil {
		return "", &Error{Kind: KindUnknownDevice, Err: err}
	}
	if device.PublicKeyB64 == "" {
		return "", &Error{Kind: KindUnknownDevice, Err: errors.New("device has no public key on file")}
	}

	var verified verifiedClaims
	if err := signing.VerifyWithKey(raw, device.PublicKeyB64, deviceIssuer, fallbackAudience, &verified); err != nil {
		return "", &Error{Kind: KindMalformedFallback, Err: err}
	}
	if verified.IssuedAt == nil {
		return "", &Error{Kind: KindMalformedFallback, Err: errors.New("missing iat claim")}
	}

	iat := time.Unix(*verified.IssuedAt, 0)
	now := time.Now()
	if iat.Before(now.Add(-v.skew)) || iat.After(now.Add(v.skew)) {
		return "", &Error{Kind: KindStaleFallback, Err: fmt.Errorf("iat %s outside %s skew of now", iat, v.skew)}
	}

	token, issueErr := v.issuer.IssueFallback(ctx, peeked.Subject, peeked.Dev)
	if issueErr != nil {
		return "", issueErr
	}
	return token, nil
}
