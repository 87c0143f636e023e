// Package server hosts the contacts service HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/walletbook/walletbook/internal/services/contacts/api/httpapi"
	"github.com/walletbook/walletbook/internal/services/contacts/events"
	"github.com/walletbook/walletbook/internal/services/contacts/grants"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
	contactsbbolt "github.com/walletbook/walletbook/internal/services/contacts/storage/bbolt"
	contactssqlite "github.com/walletbook/walletbook/internal/services/contacts/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// backend is the full storage surface a contact backend provides.
type backend interface {
	storage.ContactStore
	storage.EventStore
	Close() error
}

// Server hosts the contacts service.
type Server struct {
	listener net.Listener
	http     *http.Server
	store    backend
	bus      *events.Bus
}

// New creates a configured contacts server listening on the provided port.
func New(port int) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	store, err := openContactStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	grantCfg, err := grants.LoadConfigFromEnv(nil)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	bus := events.NewBus()
	logger := log.New(log.Writer(), "[contacts] ", log.LstdFlags)
	if err := bus.SubscribeAsync(events.LogSink(logger)); err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("subscribe event log sink: %w", err)
	}

	mux := http.NewServeMux()
	api := httpapi.NewServer(store,
		httpapi.WithEventLog(store),
		httpapi.WithBus(bus),
		httpapi.WithGrants(grantCfg),
		httpapi.WithLogger(logger),
	)
	api.RegisterRoutes(mux)

	return &Server{
		listener: listener,
		http:     &http.Server{Handler: mux},
		store:    store,
		bus:      bus,
	}, nil
}

// Addr returns the listener address for the contacts server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a contacts server until the context ends.
func Run(ctx context.Context, port int) error {
	srv, err := New(port)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the contacts server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	log.Printf("contacts server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.Serve(s.listener)
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		if s.bus != nil {
			s.bus.WaitAsync()
		}
	}

	select {
	case <-ctx.Done():
		shutdown()
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		if s.bus != nil {
			s.bus.WaitAsync()
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func openContactStore() (backend, error) {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("WALLETBOOK_CONTACTS_STORAGE")))
	path := strings.TrimSpace(os.Getenv("WALLETBOOK_CONTACTS_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "contacts.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	switch kind {
	case "", "sqlite":
		store, err := contactssqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open contacts sqlite store: %w", err)
		}
		return store, nil
	case "bbolt":
		store, err := contactsbbolt.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open contacts bbolt store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close contacts store: %v", err)
	}
}
