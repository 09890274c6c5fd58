package qrtoken

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	apperrors "github.com/gatherpoint/gatherpoint/internal/platform/errors"
)

func TestParsePayload(t *testing.T) {
	t.Parallel()

	payload, err := ParsePayload([]byte(`{"eventId":"event-1"}`))
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if payload.EventID != "event-1" {
		t.Fatalf("ParsePayload() event id = %q, want event-1", payload.EventID)
	}
}

func TestParsePayloadIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	payload, err := ParsePayload([]byte(`{"eventId":"event-1","version":2,"extra":{"nested":true}}`))
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if payload.EventID != "event-1" {
		t.Fatalf("ParsePayload() event id = %q, want event-1", payload.EventID)
	}
}

func TestParsePayloadRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "whitespace", data: "   "},
		{name: "not json", data: "event-1"},
		{name: "wrong shape", data: `["event-1"]`},
		{name: "missing event id", data: `{"version":2}`},
		{name: "blank event id", data: `{"eventId":"  "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParsePayload([]byte(tc.data))
			if !apperrors.IsCode(err, apperrors.CodeInvalidQrPayload) {
				t.Fatalf("ParsePayload(%q) error = %v, want invalid qr payload", tc.data, err)
			}
		})
	}
}

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return public, private
}

func testVerifierConfig(public ed25519.PublicKey, now time.Time) VerifierConfig {
	return VerifierConfig{
		Issuer:   "gatherpoint-events",
		Audience: "gatherpoint-door",
		Key:      public,
		Now:      func() time.Time { return now },
	}
}

func testMintOptions(now time.Time) MintOptions {
	return MintOptions{
		Issuer:   "gatherpoint-events",
		Audience: "gatherpoint-door",
		EventID:  "event-1",
		UserID:   "user-1",
		JWTID:    "token-1",
		IssuedAt: now,
		TTL:      time.Hour,
	}
}

func TestMintAndVerify(t *testing.T) {
	t.Parallel()

	public, private := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	token, err := Mint(private, testMintOptions(now))
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	claims, err := Verify(token, testVerifierConfig(public, now))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.EventID != "event-1" || claims.UserID != "user-1" {
		t.Fatalf("Verify() claims = %+v", claims)
	}
	if claims.JWTID != "token-1" {
		t.Fatalf("Verify() jti = %q, want token-1", claims.JWTID)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("Verify() exp = %v, want %v", claims.ExpiresAt, now.Add(time.Hour))
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	t.Parallel()

	_, private := testKeypair(t)
	otherPublic, _ := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	token, err := Mint(private, testMintOptions(now))
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := Verify(token, testVerifierConfig(otherPublic, now)); !apperrors.IsCode(err, apperrors.CodeInvalidQrPayload) {
		t.Fatalf("Verify() error = %v, want invalid qr payload", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	public, private := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	token, err := Mint(private, testMintOptions(now))
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := Verify(token, testVerifierConfig(public, now.Add(2*time.Hour))); !apperrors.IsCode(err, apperrors.CodeInvalidQrPayload) {
		t.Fatalf("Verify() error = %v, want invalid qr payload", err)
	}
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	t.Parallel()

	public, private := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	opts := testMintOptions(now)
	opts.Issuer = "someone-else"

	token, err := Mint(private, opts)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	_, err = Verify(token, testVerifierConfig(public, now))
	if !apperrors.IsCode(err, apperrors.CodeInvalidQrPayload) {
		t.Fatalf("Verify() error = %v, want invalid qr payload", err)
	}
	if metadata := apperrors.GetMetadata(err); metadata["Field"] != "issuer" {
		t.Fatalf("Verify() metadata = %v, want issuer field", metadata)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	public, _ := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for _, token := range []string{"", "   ", "not-a-token", "a.b.c"} {
		if _, err := Verify(token, testVerifierConfig(public, now)); !apperrors.IsCode(err, apperrors.CodeInvalidQrPayload) {
			t.Fatalf("Verify(%q) error = %v, want invalid qr payload", token, err)
		}
	}
}

func TestVerifyRequiresConfig(t *testing.T) {
	t.Parallel()

	_, private := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	token, err := Mint(private, testMintOptions(now))
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := Verify(token, VerifierConfig{}); err == nil || apperrors.IsCode(err, apperrors.CodeInvalidQrPayload) {
		t.Fatalf("Verify() error = %v, want configuration error", err)
	}
}

func TestMintValidatesOptions(t *testing.T) {
	t.Parallel()

	_, private := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	opts := testMintOptions(now)
	opts.EventID = ""
	if _, err := Mint(private, opts); err == nil {
		t.Fatal("Mint() without event id error = nil, want error")
	}

	opts = testMintOptions(now)
	opts.UserID = " "
	if _, err := Mint(private, opts); err == nil {
		t.Fatal("Mint() without user id error = nil, want error")
	}

	if _, err := Mint(ed25519.PrivateKey{}, testMintOptions(now)); err == nil {
		t.Fatal("Mint() with bad key error = nil, want error")
	}
}

func TestMintGeneratesJTIWhenOmitted(t *testing.T) {
	t.Parallel()

	public, private := testKeypair(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	opts := testMintOptions(now)
	opts.JWTID = ""

	token, err := Mint(private, opts)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	claims, err := Verify(token, testVerifierConfig(public, now))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(claims.JWTID) != 26 {
		t.Fatalf("Verify() generated jti = %q, want 26 chars", claims.JWTID)
	}
}

func TestLoadVerifierConfigFromEnv(t *testing.T) {
	t.Setenv("GATHERPOINT_ATTENDANCE_TOKEN_ISSUER", "")
	t.Setenv("GATHERPOINT_ATTENDANCE_TOKEN_AUDIENCE", "")
	t.Setenv("GATHERPOINT_ATTENDANCE_TOKEN_PUBLIC_KEY", "")
	if _, err := LoadVerifierConfigFromEnv(nil); err == nil {
		t.Fatal("LoadVerifierConfigFromEnv() error = nil, want error")
	}

	public, _ := testKeypair(t)
	t.Setenv("GATHERPOINT_ATTENDANCE_TOKEN_ISSUER", "gatherpoint-events")
	t.Setenv("GATHERPOINT_ATTENDANCE_TOKEN_AUDIENCE", "gatherpoint-door")
	t.Setenv("GATHERPOINT_ATTENDANCE_TOKEN_PUBLIC_KEY", base64.RawStdEncoding.EncodeToString(public))

	cfg, err := LoadVerifierConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("LoadVerifierConfigFromEnv() error = %v", err)
	}
	if cfg.Issuer != "gatherpoint-events" || cfg.Audience != "gatherpoint-door" {
		t.Fatalf("LoadVerifierConfigFromEnv() = %+v", cfg)
	}
	if len(cfg.Key) != ed25519.PublicKeySize {
		t.Fatalf("LoadVerifierConfigFromEnv() key size = %d", len(cfg.Key))
	}
}
