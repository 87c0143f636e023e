package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/walletbook/walletbook/internal/platform/errors"
	"github.com/walletbook/walletbook/internal/platform/pagination"
	"github.com/walletbook/walletbook/internal/platform/requestctx"
	"github.com/walletbook/walletbook/internal/services/contacts/filter"
	"github.com/walletbook/walletbook/internal/services/contacts/grants"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
)

// maxBodyBytes bounds request payloads; contact records are small.
const maxBodyBytes = 1 << 20

type contactRequest struct {
	Wallet string `json:"wallet"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
}

type contactPayload struct {
	ID        uint64 `json:"id"`
	Wallet    string `json:"wallet,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type eventPayload struct {
	Seq       uint64 `json:"seq"`
	Type      string `json:"type"`
	ContactID uint64 `json:"contact_id"`
	Wallet    string `json:"wallet,omitempty"`
	EmittedAt string `json:"emitted_at"`
}

type contactListResponse struct {
	Contacts []contactPayload `json:"contacts"`
}

type eventListResponse struct {
	Events []eventPayload `json:"events"`
}

type lookupResponse struct {
	ContactID uint64 `json:"contact_id"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req contactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, apperrors.New(apperrors.CodeRequestInvalid, "request body is not valid JSON"))
		return
	}
	wallet, err := parseWallet(req.Wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx := callerContext(r, caller)
	contact, event, err := s.store.AddContact(ctx, storage.AddContactParams{
		Owner:  caller,
		Wallet: wallet,
		Name:   req.Name,
		Phone:  req.Phone,
		Email:  req.Email,
		Now:    s.clock().UTC(),
	})
	if err != nil {
		s.writeError(w, mapStorageError(err))
		return
	}
	s.publish(event)

	writeJSON(w, http.StatusCreated, toContactPayload(contact))
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	body, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req contactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, apperrors.New(apperrors.CodeRequestInvalid, "request body is not valid JSON"))
		return
	}
	wallet, err := parseWallet(req.Wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx := callerContext(r, caller)
	contact, event, err := s.store.UpdateContact(ctx, storage.UpdateContactParams{
		Owner:  caller,
		ID:     id,
		Wallet: wallet,
		Name:   req.Name,
		Phone:  req.Phone,
		Email:  req.Email,
		Now:    s.clock().UTC(),
	})
	if err != nil {
		s.writeError(w, mapStorageError(err))
		return
	}
	s.publish(event)

	writeJSON(w, http.StatusOK, toContactPayload(contact))
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx := callerContext(r, caller)
	event, err := s.store.RemoveContact(ctx, caller, id, s.clock().UTC())
	if err != nil {
		s.writeError(w, mapStorageError(err))
		return
	}
	s.publish(event)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	contact, err := s.store.GetContact(callerContext(r, caller), caller, id)
	if err != nil {
		s.writeError(w, mapStorageError(err))
		return
	}

	writeJSON(w, http.StatusOK, toContactPayload(contact))
}

func (s *Server) handleFindByWallet(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	wallet, err := parseWallet(r.PathValue("wallet"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.store.FindContactIDByWallet(callerContext(r, caller), caller, wallet)
	if err != nil {
		s.writeError(w, mapStorageError(err))
		return
	}

	writeJSON(w, http.StatusOK, lookupResponse{ContactID: id})
}

func (s *Server) handleListOwnContacts(w http.ResponseWriter, r *http.Request) {
	_, caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	s.listContacts(w, r.WithContext(callerContext(r, caller)), caller)
}

func (s *Server) handleListOwnerContacts(w http.ResponseWriter, r *http.Request) {
	owner, err := parseOwner(r.PathValue("owner"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.listContacts(w, r, owner)
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request, owner common.Address) {
	start, limit, err := s.parseWindow(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contacts, err := s.store.ListContacts(r.Context(), owner, start, limit)
	if err != nil {
		s.writeError(w, mapStorageError(err))
		return
	}

	payload := contactListResponse{Contacts: make([]contactPayload, 0, len(contacts))}
	for _, contact := range contacts {
		payload.Contacts = append(payload.Contacts, toContactPayload(contact))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListOwnerEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		s.writeError(w, apperrors.New(apperrors.CodeUnknown, "event log is not configured"))
		return
	}
	owner, err := parseOwner(r.PathValue("owner"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	start, limit, err := s.parseWindow(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	query, err := filter.ParseEventFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.CodeEventFilterInvalid, "invalid event filter", err))
		return
	}

	listed, err := s.eventLog.ListEvents(r.Context(), owner, query, start, limit)
	if err != nil {
		s.writeError(w, mapStorageError(err))
		return
	}

	payload := eventListResponse{Events: make([]eventPayload, 0, len(listed))}
	for _, event := range listed {
		payload.Events = append(payload.Events, toEventPayload(event))
	}
	writeJSON(w, http.StatusOK, payload)
}

// authenticate reads the request body and resolves the caller's wallet
// address, either from a bearer grant or a request signature. On failure it
// writes the error response itself.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) ([]byte, common.Address, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, apperrors.New(apperrors.CodeRequestInvalid, "failed to read request body"))
		return nil, common.Address{}, false
	}

	if bearer := bearerToken(r); bearer != "" && s.grantCfg.Enabled() {
		claims, err := grants.ValidateGrant(bearer, s.grantCfg)
		if err != nil {
			s.writeError(w, err)
			return nil, common.Address{}, false
		}
		return body, claims.Caller, true
	}

	caller, err := s.verifier.Verify(r, body)
	if err != nil {
		s.writeError(w, err)
		return nil, common.Address{}, false
	}
	return body, caller, true
}

// callerContext stamps the authenticated caller onto the request context and
// the active request span.
func callerContext(r *http.Request, caller common.Address) context.Context {
	ctx := requestctx.WithCaller(r.Context(), caller)
	annotateCaller(ctx)
	return ctx
}

func bearerToken(r *http.Request) string {
	value := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(value) > 7 && strings.EqualFold(value[:7], "Bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return ""
}

func (s *Server) parseWindow(r *http.Request) (uint64, uint64, error) {
	query := r.URL.Query()

	var start uint64
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, apperrors.New(apperrors.CodeRequestInvalid, "offset must be a non-negative integer")
		}
		start = parsed
	}

	var (
		limit    uint64
		explicit bool
	)
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, 0, apperrors.New(apperrors.CodeRequestInvalid, "limit must be a non-negative integer")
		}
		limit = parsed
		explicit = true
	}
	return start, pagination.ClampLimit(limit, explicit, s.limits), nil
}

func (s *Server) publish(event storage.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	body := errorBody{Code: string(code), Message: err.Error()}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Details = appErr.Metadata
	}
	if status >= http.StatusInternalServerError {
		s.logger.Printf("request failed: %v", err)
		body.Message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// mapStorageError lifts storage sentinel errors into coded errors.
func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.New(apperrors.CodeContactNotFound, "contact not found")
	case errors.Is(err, storage.ErrDuplicateWallet):
		return apperrors.New(apperrors.CodeContactDuplicateWallet, "wallet already mapped to a live contact")
	case errors.Is(err, storage.ErrWalletInUse):
		return apperrors.New(apperrors.CodeContactWalletInUse, "wallet in use by another live contact")
	default:
		return err
	}
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.New(apperrors.CodeContactInvalidID, "contact id must be a positive integer")
	}
	return id, nil
}

func parseWallet(raw string) (common.Address, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, apperrors.New(apperrors.CodeContactInvalidWallet, "wallet must be a hex address")
	}
	return common.HexToAddress(value), nil
}

func parseOwner(raw string) (common.Address, error) {
	value := strings.TrimSpace(raw)
	if !common.IsHexAddress(value) {
		return common.Address{}, apperrors.New(apperrors.CodeCallerInvalidOwner, "owner must be a hex address")
	}
	return common.HexToAddress(value), nil
}

func toContactPayload(contact storage.Contact) contactPayload {
	return contactPayload{
		ID:        contact.ID,
		Wallet:    storage.AddressText(contact.Wallet),
		Name:      contact.Name,
		Phone:     contact.Phone,
		Email:     contact.Email,
		CreatedAt: contact.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: contact.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toEventPayload(event storage.Event) eventPayload {
	return eventPayload{
		Seq:       event.Seq,
		Type:      string(event.Type),
		ContactID: event.ContactID,
		Wallet:    storage.AddressText(event.Wallet),
		EmittedAt: event.EmittedAt.UTC().Format(time.RFC3339),
	}
}
