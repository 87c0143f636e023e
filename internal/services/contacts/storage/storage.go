// Package storage defines persistence contracts for the contact directory.
package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound indicates the addressed contact is missing or removed.
var ErrNotFound = errors.New("contact not found")

// ErrDuplicateWallet indicates the wallet is already live for the owner.
var ErrDuplicateWallet = errors.New("wallet already mapped to a live contact")

// ErrWalletInUse indicates the wallet is live under a different contact.
var ErrWalletInUse = errors.New("wallet in use by another live contact")

// Contact stores one owner-scoped directory entry. Removed contacts remain
// in storage as tombstones so their id slot is never reassigned.
type Contact struct {
	Owner     common.Address
	ID        uint64
	Wallet    common.Address
	Name      string
	Phone     string
	Email     string
	Live      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventType identifies a directory change notification.
type EventType string

const (
	// EventContactAdded is recorded when a contact is created.
	EventContactAdded EventType = "contact.added"
	// EventContactUpdated is recorded when a live contact is overwritten.
	EventContactUpdated EventType = "contact.updated"
	// EventContactRemoved is recorded when a live contact is tombstoned.
	EventContactRemoved EventType = "contact.removed"
)

// Event is one entry of the append-only per-owner change log. It is written
// in the same transaction as the mutation it describes.
type Event struct {
	Seq       uint64
	Type      EventType
	Owner     common.Address
	ContactID uint64
	Wallet    common.Address
	EmittedAt time.Time
}

// AddContactParams carries the fields of a new contact.
type AddContactParams struct {
	Owner  common.Address
	Wallet common.Address
	Name   string
	Phone  string
	Email  string
	Now    time.Time
}

// UpdateContactParams carries the full replacement state for a live contact.
// Name, phone and email are always overwritten; there is no partial update.
type UpdateContactParams struct {
	Owner  common.Address
	ID     uint64
	Wallet common.Address
	Name   string
	Phone  string
	Email  string
	Now    time.Time
}

// EventQuery narrows an event listing. Empty slices match everything;
// within one field the values are alternatives, across fields they must all
// match.
type EventQuery struct {
	Types      []EventType
	ContactIDs []uint64
	Wallets    []common.Address
}

// Matches reports whether the event satisfies every populated field.
func (q EventQuery) Matches(e Event) bool {
	if len(q.Types) > 0 && !slices.Contains(q.Types, e.Type) {
		return false
	}
	if len(q.ContactIDs) > 0 && !slices.Contains(q.ContactIDs, e.ContactID) {
		return false
	}
	if len(q.Wallets) > 0 && !slices.Contains(q.Wallets, e.Wallet) {
		return false
	}
	return true
}

// ContactStore persists owner-scoped contact directories.
//
// Implementations execute each mutation atomically: either the record, the
// wallet index and the event log all change, or none of them do. Contact ids
// are assigned sequentially from 1 per owner and never reused, including
// after removal.
type ContactStore interface {
	AddContact(ctx context.Context, params AddContactParams) (Contact, Event, error)
	UpdateContact(ctx context.Context, params UpdateContactParams) (Contact, Event, error)
	RemoveContact(ctx context.Context, owner common.Address, id uint64, now time.Time) (Event, error)
	GetContact(ctx context.Context, owner common.Address, id uint64) (Contact, error)
	// FindContactIDByWallet returns 0, not an error, when no live contact
	// holds the wallet. The index is re-validated against liveness on read.
	FindContactIDByWallet(ctx context.Context, owner common.Address, wallet common.Address) (uint64, error)
	// ListContacts scans up to limit id slots of the owner's full sequence,
	// tombstones included, starting at zero-based offset start, and returns
	// the live contacts found in that window in insertion order.
	ListContacts(ctx context.Context, owner common.Address, start, limit uint64) ([]Contact, error)
}

// EventStore reads the per-owner change log.
type EventStore interface {
	ListEvents(ctx context.Context, owner common.Address, query EventQuery, start, limit uint64) ([]Event, error)
}

// AddressText canonicalizes an address for storage keys: lowercase hex for
// real addresses, the empty string for the zero address so that absent
// wallets never collide in uniqueness checks.
func AddressText(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return strings.ToLower(addr.Hex())
}

// AddressFromText reverses AddressText.
func AddressFromText(value string) common.Address {
	if value == "" {
		return common.Address{}
	}
	return common.HexToAddress(value)
}
