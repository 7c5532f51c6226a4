// Package routepass implements the Route Pass Orchestrator (C5): the
// end-to-end issuance of a signed Route Pass for an authenticated user,
// per spec.md §4.5.
package routepass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skatamatic/blulok-cloud/internal/audience"
	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/schedule"
	"github.com/skatamatic/blulok-cloud/internal/signing"
)

// Kind enumerates the Route Pass issuance failure modes named in spec.md §4.5.
type Kind string

const (
	KindInvalidDeviceHint    Kind = "invalid_device_hint"
	KindNoRegisteredDevice   Kind = "no_registered_device"
	KindSigningUnavailable   Kind = "signing_unavailable"
	KindPersistenceUnavailable Kind = "persistence_unavailable"
)

// Error wraps an issuance failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Identity is the authenticated caller context a Route Pass is issued for.
type Identity struct {
	UserID      string
	Role        domain.Role
	FacilityIDs []string
}

// Claims is the JSON shape signed into a Route Pass, composed alongside the
// registered iat/exp/jti/iss claims by the signing service.
type Claims struct {
	Subject      string            `json:"sub"`
	DevicePubKey string            `json:"device_pubkey"`
	Audience     []string          `json:"aud"`
	Schedule     *schedule.Claim   `json:"schedule,omitempty"`
}

// DeviceLookup is the capability this orchestrator needs from the device
// table, per spec.md §9's "declared constructor dependencies" design note.
// *store.DeviceStore satisfies it; tests use a fake.
type DeviceLookup interface {
	GetByAppDeviceID(ctx context.Context, userID, appDeviceID string) (*domain.UserDevice, error)
	MostRecentlyUpdated(ctx context.Context, userID string) (*domain.UserDevice, error)
}

// IssuanceRecorder is the capability this orchestrator needs to write the
// best-effort Route Pass audit trail. *store.RoutePassStore satisfies it.
type IssuanceRecorder interface {
	Record(ctx context.Context, issuance domain.RoutePassIssuance) error
}

// Orchestrator wires device lookup, audience resolution, schedule
// resolution, signing, and best-effort issuance logging into a single
// Route Pass issuance operation.
type Orchestrator struct {
	signer    *signing.Service
	audiences *audience.Resolver
	schedules *schedule.Resolver
	devices   DeviceLookup
	issuances IssuanceRecorder
	ttl       time.Duration
	log       *slog.Logger
}

// New creates an Orchestrator. ttl is the Route Pass lifetime (RoutePassTTL).
func New(
	signer *signing.Service,
	audiences *audience.Resolver,
	schedules *schedule.Resolver,
	devices DeviceLookup,
	issuances IssuanceRecorder,
	ttl time.Duration,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		signer:    signer,
		audiences: audiences,
		schedules: schedules,
		devices:   devices,
		issuances: issuances,
		ttl:       ttl,
		log:       log,
	}
}

// IssueForUser implements the issueForUser(ctx, appDeviceId?) operation.
// appDeviceID is optional; an empty string means "no device hint".
func (o *Orchestrator) IssueForUser(ctx context.Context, ident Identity, appDeviceID string) (token string, err error) {
	device, err := o.selectDevice(ctx, ident.UserID, appDeviceID)
	if err != nil {
		return "", err
	}

	auds, err := o.audiences.Resolve(ctx, ident.UserID, ident.Role, ident.FacilityIDs)
	if err != nil {
		return "", &Error{Kind: KindPersistenceUnavailable, Err: fmt.Errorf("resolving audiences: %w", err)}
	}

	sched, err := o.schedules.Resolve(ctx, ident.UserID, ident.FacilityIDs, auds)
	if err != nil {
		return "", &Error{Kind: KindPersistenceUnavailable, Err: fmt.Errorf("resolving schedule: %w", err)}
	}

	claims := Claims{
		Subject:      ident.UserID,
		DevicePubKey: device.PublicKeyB64,
		Audience:     auds,
		Schedule:     sched,
	}

	token, jti, issuedAt, err := o.signer.Sign(claims, o.ttl)
	if err != nil {
		return "", &Error{Kind: KindSigningUnavailable, Err: err}
	}

	issuance := domain.RoutePassIssuance{
		JTI:       jti,
		UserID:    ident.UserID,
		DeviceID:  device.ID,
		Audiences: auds,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(o.ttl),
	}
	if err := o.issuances.Record(ctx, issuance); err != nil {
		o.log.Warn("failed to record route pass issuance", "jti", jti, "user_id", ident.UserID, "error", err)
	}

	return token, nil
}

// IssueFallback issues a Route Pass with a deliberately empty audience list
// and no schedule claim — the bootstrap credential the fallback verifier
// (C6) emits once it has authenticated a device-signed emergency token.
// Lock ids are determined later by the gateway-internal flow; this pass's
// value is surviving a network partition, not scope expansion.
func (o *Orchestrator) IssueFallback(ctx context.Context, userID, appDeviceID string) (token string, err error) {
	device, err := o.selectDevice(ctx, userID, appDeviceID)
	if err != nil {
		return "", err
	}

	claims := Claims{
		Subject:      userID,
		DevicePubKey: device.PublicKeyB64,
		Audience:     []string{},
	}

	token, jti, issuedAt, err := o.signer.Sign(claims, o.ttl)
	if err != nil {
		return "", &Error{Kind: KindSigningUnavailable, Err: err}
	}

	issuance := domain.RoutePassIssuance{
		JTI:       jti,
		UserID:    userID,
		DeviceID:  device.ID,
		Audiences: nil,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(o.ttl),
	}
	if err := o.issuances.Record(ctx, issuance); err != nil {
		o.log.Warn("failed to record fallback route pass issuance", "jti", jti, "user_id", userID, "error", err)
	}

	return token, nil
}

func (o *Orchestrator) selectDevice(ctx context.Context, userID, appDeviceID string) (*domain.UserDevice, error) {
	var device *domain.UserDevice
	var err error

	if appDeviceID != "" {
		device, err = o.devices.GetByAppDeviceID(ctx, userID, appDeviceID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &Error{Kind: KindInvalidDeviceHint, Err: fmt.Errorf("no active-or-pending device %q for user", appDeviceID)}
		}
	} else {
		device, err = o.devices.MostRecentlyUpdated(ctx, userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &Error{Kind: KindNoRegisteredDevice, Err: errors.New("user has no registered device")}
		}
	}
	if err != nil {
		return nil, &Error{Kind: KindPersistenceUnavailable, Err: fmt.Errorf("looking up device: %w", err)}
	}
	if device.PublicKeyB64 == "" {
		return nil, &Error{Kind: KindNoRegisteredDevice, Err: errors.New("selected device has no public key")}
	}
	return device, nil
}
