// Package signing holds the operator's Ed25519 keypair and signs/verifies
// the compact EdDSA-JWT tokens used for Route Passes, time-sync packets, and
// denylist commands. It generalizes the teacher's HMAC SessionManager
// (github.com/wisbric/core/pkg/auth.SessionManager) from a single shared
// secret to an asymmetric operator key, and from one claim shape to any
// caller-supplied claims.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// Issuer is the "iss" claim this service stamps on every token it signs.
const Issuer = "blulok-cloud"

// Kind enumerates the reasons verification can fail, matching spec.md's
// error taxonomy rather than exposing go-jose's own error types.
type Kind string

const (
	KindBadSignature Kind = "bad_signature"
	KindExpired      Kind = "expired"
	KindBadAudience  Kind = "bad_audience"
	KindBadIssuer    Kind = "bad_issuer"
)

// Error wraps a verification failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Claims is the minimal registered-claim shape every token this service
// issues carries. Sign does not take it: Sign stamps the registered claims
// itself through jwt.Claims and merges the caller's own payload beside them.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	Audience  []string  `json:"aud,omitempty"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
	JTI       string    `json:"-"`
}

// Service holds the operator keypair and signs/verifies tokens.
type Service struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// pubKeyLen is the base64url length of a 32-byte Ed25519 key (no padding).
const pubKeyLen = 43

// New validates and loads the operator keypair from base64url-encoded
// configuration values. Both the private key (a 32-byte Ed25519 seed) and
// the public key must decode to exactly 32 bytes; this fails fast rather
// than accepting a malformed key that would only surface as a signature
// mismatch at the first sign/verify call.
func New(privateSeedB64, publicKeyB64 string) (*Service, error) {
	seed, err := decodeKey(privateSeedB64, ed25519.SeedSize)
	if err != nil {
		return nil, fmt.Errorf("operator private key: %w", err)
	}
	pub, err := decodeKey(publicKeyB64, ed25519.PublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("operator public key: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(pub)) {
		return nil, fmt.Errorf("operator public key does not match private key")
	}
	return &Service{private: priv, public: ed25519.PublicKey(pub)}, nil
}

func decodeKey(b64 string, wantLen int) ([]byte, error) {
	if len(b64) != pubKeyLen {
		return nil, fmt.Errorf("expected base64url length %d, got %d", pubKeyLen, len(b64))
	}
	raw, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decoding base64url: %w", err)
	}
	if len(raw) != wantLen {
		return nil, fmt.Errorf("expected %d decoded bytes, got %d", wantLen, len(raw))
	}
	return raw, nil
}

// PublicKeyB64 returns the operator public key, base64url-encoded, for
// publishing to gateways/locks that verify signed commands.
func (s *Service) PublicKeyB64() string {
	return base64.RawURLEncoding.EncodeToString(s.public)
}

// Sign signs custom claims with the operator key, stamping iat/exp/jti/iss.
// exp is always stamped as iat+ttl, whatever ttl is passed: a zero ttl gives
// exp equal to iat and a negative ttl gives an already-expired token.
func (s *Service) Sign(custom any, ttl time.Duration) (token string, jti string, issuedAt time.Time, err error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.EdDSA, Key: s.private},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	jti = uuid.New().String()
	registered := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		ID:       jti,
		Issuer:   Issuer,
	}

	raw, err := jwt.Signed(signer).Claims(registered).Claims(custom).Serialize()
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return raw, jti, now, nil
}

// Verify checks the signature, issuer, expiry, and (if non-empty) audience
// of a token signed by this service's own key, decoding into dst.
func (s *Service) Verify(raw string, expectedAudience string, dst any) error {
	return verifyWith(raw, s.public, Issuer, expectedAudience, dst)
}

// VerifyWithKey checks a token signed by a different Ed25519 key, requiring
// a caller-supplied issuer rather than this service's own Issuer constant —
// used by the fallback verifier, which checks a device's own public key and
// a device-side issuer ("blulok-app") rather than the operator's.
func VerifyWithKey(raw string, publicKeyB64 string, expectedIssuer, expectedAudience string, dst any) error {
	raw32, err := decodeKey(publicKeyB64, ed25519.PublicKeySize)
	if err != nil {
		return &Error{Kind: KindBadSignature, Err: fmt.Errorf("device public key: %w", err)}
	}
	return verifyWith(raw, ed25519.PublicKey(raw32), expectedIssuer, expectedAudience, dst)
}

func verifyWith(raw string, pub ed25519.PublicKey, expectedIssuer, expectedAudience string, dst any) error {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return &Error{Kind: KindBadSignature, Err: err}
	}

	var registered jwt.Claims
	if err := tok.Claims(pub, &registered, dst); err != nil {
		return &Error{Kind: KindBadSignature, Err: err}
	}

	expected := jwt.Expected{Issuer: expectedIssuer, Time: time.Now()}
	if expectedAudience != "" {
		expected.AnyAudience = jwt.Audience{expectedAudience}
	}
	if err := registered.Validate(expected); err != nil {
		switch err {
		case jwt.ErrExpired:
			return &Error{Kind: KindExpired, Err: err}
		case jwt.ErrInvalidAudience:
			return &Error{Kind: KindBadAudience, Err: err}
		case jwt.ErrInvalidIssuer:
			return &Error{Kind: KindBadIssuer, Err: err}
		default:
			return &Error{Kind: KindBadSignature, Err: err}
		}
	}
	return nil
}

// PeekUnverified decodes claims from a token without checking its signature.
// Used only by the fallback verifier, which must read sub/dev before it can
// look up which key to verify against (spec.md §4.6 step 1).
func PeekUnverified(raw string, dst any) error {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return &Error{Kind: KindBadSignature, Err: err}
	}
	if err := tok.UnsafeClaimsWithoutVerification(dst); err != nil {
		return &Error{Kind: KindBadSignature, Err: err}
	}
	return nil
}

// GenerateKeypair creates a fresh Ed25519 keypair for local/dev bootstrapping,
// base64url-encoded the same way configured keys are. The private value is
// the 32-byte seed, not the expanded 64-byte key.
func GenerateKeypair() (publicB64, privateSeedB64 string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generating ed25519 keypair: %w", err)
	}
	seed := priv.Seed()
	return base64.RawURLEncoding.EncodeToString(pub), base64.RawURLEncoding.EncodeToString(seed), nil
}
