package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenContactStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("WALLETBOOK_CONTACTS_STORAGE", "")
	t.Setenv("WALLETBOOK_CONTACTS_DB_PATH", filepath.Join(t.TempDir(), "contacts.db"))

	store, err := openContactStore()
	if err != nil {
		t.Fatalf("open contact store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close contact store: %v", err)
	}
}

func TestOpenContactStoreBBolt(t *testing.T) {
	t.Setenv("WALLETBOOK_CONTACTS_STORAGE", "bbolt")
	t.Setenv("WALLETBOOK_CONTACTS_DB_PATH", filepath.Join(t.TempDir(), "contacts.db"))

	store, err := openContactStore()
	if err != nil {
		t.Fatalf("open bbolt contact store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close contact store: %v", err)
	}
}

func TestOpenContactStoreUnknownBackend(t *testing.T) {
	t.Setenv("WALLETBOOK_CONTACTS_STORAGE", "postgres")
	t.Setenv("WALLETBOOK_CONTACTS_DB_PATH", filepath.Join(t.TempDir(), "contacts.db"))

	if _, err := openContactStore(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestOpenContactStoreInvalidDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("data"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	t.Setenv("WALLETBOOK_CONTACTS_STORAGE", "sqlite")
	t.Setenv("WALLETBOOK_CONTACTS_DB_PATH", filepath.Join(file, "contacts.db"))

	if _, err := openContactStore(); err == nil {
		t.Fatal("expected error for invalid storage dir")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Setenv("WALLETBOOK_CONTACTS_STORAGE", "sqlite")
	t.Setenv("WALLETBOOK_CONTACTS_DB_PATH", filepath.Join(t.TempDir(), "contacts.db"))
	t.Setenv("WALLETBOOK_CONTACTS_GRANT_ISSUER", "")
	t.Setenv("WALLETBOOK_CONTACTS_GRANT_AUDIENCE", "")
	t.Setenv("WALLETBOOK_CONTACTS_GRANT_PUBLIC_KEY", "")

	srv, err := New(0)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.Addr() == "" {
		t.Fatal("expected listener address")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/up")
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
