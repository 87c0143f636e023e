package sigauth

import (
	"bytes"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	apperrors "github.com/walletbook/walletbook/internal/platform/errors"
)

func TestVerifyRecoversSigner(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"name":"Bob"}`)
	headers, err := Sign(key, "POST", "/v1/contacts", body, now.Unix())
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}

	req := httptest.NewRequest("POST", "/v1/contacts", bytes.NewReader(body))
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	verifier := &Verifier{Now: func() time.Time { return now }}
	caller, err := verifier.Verify(req, body)
	if err != nil {
		t.Fatalf("verify request: %v", err)
	}
	if caller != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("recovered caller %s, want %s", caller.Hex(), crypto.PubkeyToAddress(key.PublicKey).Hex())
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	headers, err := Sign(key, "POST", "/v1/contacts", []byte(`{"name":"Bob"}`), now.Unix())
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}

	tampered := []byte(`{"name":"Mallory"}`)
	req := httptest.NewRequest("POST", "/v1/contacts", bytes.NewReader(tampered))
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	verifier := &Verifier{Now: func() time.Time { return now }}
	if _, err := verifier.Verify(req, tampered); !apperrors.IsCode(err, apperrors.CodeCallerUnauthenticated) {
		t.Fatalf("tampered body error = %v, want unauthenticated", err)
	}
}

func TestVerifyRejectsClaimedAddressMismatch(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	otherKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)
	headers, err := Sign(key, "POST", "/v1/contacts", body, now.Unix())
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}

	req := httptest.NewRequest("POST", "/v1/contacts", bytes.NewReader(body))
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	req.Header.Set(HeaderAddress, crypto.PubkeyToAddress(otherKey.PublicKey).Hex())

	verifier := &Verifier{Now: func() time.Time { return now }}
	if _, err := verifier.Verify(req, body); !apperrors.IsCode(err, apperrors.CodeCallerUnauthenticated) {
		t.Fatalf("mismatched address error = %v, want unauthenticated", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	signedAt := now.Add(-time.Hour)
	body := []byte(`{}`)
	headers, err := Sign(key, "DELETE", "/v1/contacts/3", body, signedAt.Unix())
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/v1/contacts/3", bytes.NewReader(body))
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	verifier := &Verifier{Now: func() time.Time { return now }}
	if _, err := verifier.Verify(req, body); !apperrors.IsCode(err, apperrors.CodeCallerUnauthenticated) {
		t.Fatalf("stale timestamp error = %v, want unauthenticated", err)
	}
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/v1/contacts", strings.NewReader("{}"))
	verifier := NewVerifier()
	if _, err := verifier.Verify(req, []byte("{}")); !apperrors.IsCode(err, apperrors.CodeCallerUnauthenticated) {
		t.Fatalf("missing headers error = %v, want unauthenticated", err)
	}
}

func TestMessageCommitsToEveryPart(t *testing.T) {
	t.Parallel()

	base := Message("POST", "/v1/contacts", []byte("{}"), 100)
	variants := []string{
		Message("PUT", "/v1/contacts", []byte("{}"), 100),
		Message("POST", "/v1/contacts/1", []byte("{}"), 100),
		Message("POST", "/v1/contacts", []byte(`{"a":1}`), 100),
		Message("POST", "/v1/contacts", []byte("{}"), 101),
	}
	for i, variant := range variants {
		if variant == base {
			t.Fatalf("variant %d collided with base message %q", i, base)
		}
	}
	if !strings.HasPrefix(base, "walletbook-contacts|POST|/v1/contacts|") {
		t.Fatalf("unexpected message layout: %q", base)
	}
	if !strings.HasSuffix(base, "|"+strconv.FormatInt(100, 10)) {
		t.Fatalf("message missing timestamp suffix: %q", base)
	}
}
