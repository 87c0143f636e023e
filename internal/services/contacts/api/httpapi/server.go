// Package httpapi exposes the contact directory over HTTP JSON endpoints.
package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/walletbook/walletbook/internal/platform/pagination"
	"github.com/walletbook/walletbook/internal/services/contacts/events"
	"github.com/walletbook/walletbook/internal/services/contacts/grants"
	"github.com/walletbook/walletbook/internal/services/contacts/sigauth"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
)

// DefaultListLimits bounds contact and event list windows.
var DefaultListLimits = pagination.LimitConfig{Default: 50, Max: 500}

// Server hosts the contact directory HTTP endpoints.
type Server struct {
	store    storage.ContactStore
	eventLog storage.EventStore
	bus      *events.Bus
	verifier *sigauth.Verifier
	grantCfg grants.Config
	limits   pagination.LimitConfig
	clock    func() time.Time
	logger   *log.Logger
}

// Option adjusts server construction.
type Option func(*Server)

// WithEventLog wires the read side of the event log.
func WithEventLog(eventLog storage.EventStore) Option {
	return func(s *Server) { s.eventLog = eventLog }
}

// WithBus wires the bus committed events are published on.
func WithBus(bus *events.Bus) Option {
	return func(s *Server) { s.bus = bus }
}

// WithGrants enables grant-based caller authentication.
func WithGrants(cfg grants.Config) Option {
	return func(s *Server) { s.grantCfg = cfg }
}

// WithClock overrides the server clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the request logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds a directory server bound to a contact store.
func NewServer(store storage.ContactStore, opts ...Option) *Server {
	s := &Server{
		store:    store,
		verifier: sigauth.NewVerifier(),
		limits:   DefaultListLimits,
		clock:    time.Now,
		logger:   log.New(log.Writer(), "[contacts-api] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.verifier.Now = s.clock
	return s
}

// RegisterRoutes registers directory HTTP endpoints on the provided mux.
// Every directory route carries request tracing and logging; the health
// probe is left unwrapped.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}

	handle := func(pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, s.observe(pattern, handler))
	}
	handle("POST /v1/contacts", s.handleAddContact)
	handle("GET /v1/contacts", s.handleListOwnContacts)
	handle("GET /v1/contacts/{id}", s.handleGetContact)
	handle("PUT /v1/contacts/{id}", s.handleUpdateContact)
	handle("DELETE /v1/contacts/{id}", s.handleRemoveContact)
	handle("GET /v1/contacts/by-wallet/{wallet}", s.handleFindByWallet)

	handle("GET /v1/owners/{owner}/contacts", s.handleListOwnerContacts)
	handle("GET /v1/owners/{owner}/events", s.handleListOwnerEvents)

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
