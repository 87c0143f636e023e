// Package sqlite provides a SQLite-backed contact directory implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	sqlitemigrate "github.com/walletbook/walletbook/internal/platform/storage/sqlitemigrate"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
	"github.com/walletbook/walletbook/internal/services/contacts/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists contact directories in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite contact store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AddContact assigns the owner's next id and inserts one live contact.
func (s *Store) AddContact(ctx context.Context, params storage.AddContactParams) (storage.Contact, storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, storage.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("storage is not configured")
	}
	now := params.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	owner := ownerText(params.Owner)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("begin add contact: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	lastID, err := ownerLastID(ctx, tx, owner)
	if err != nil {
		return storage.Contact{}, storage.Event{}, err
	}
	newID := lastID + 1

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO owner_counters (owner, last_id) VALUES (?, ?)
		 ON CONFLICT (owner) DO UPDATE SET last_id = excluded.last_id`,
		owner,
		newID,
	); err != nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("advance owner counter: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO contacts (owner, id, wallet, name, phone, email, live, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		owner,
		newID,
		storage.AddressText(params.Wallet),
		params.Name,
		params.Phone,
		params.Email,
		toMillis(now),
		toMillis(now),
	); err != nil {
		if isWalletUniqueViolation(err) {
			return storage.Contact{}, storage.Event{}, storage.ErrDuplicateWallet
		}
		return storage.Contact{}, storage.Event{}, fmt.Errorf("insert contact: %w", err)
	}

	event, err := appendEvent(ctx, tx, storage.Event{
		Type:      storage.EventContactAdded,
		Owner:     params.Owner,
		ContactID: newID,
		Wallet:    params.Wallet,
		EmittedAt: now,
	})
	if err != nil {
		return storage.Contact{}, storage.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("commit add contact: %w", err)
	}

	return storage.Contact{
		Owner:     params.Owner,
		ID:        newID,
		Wallet:    params.Wallet,
		Name:      params.Name,
		Phone:     params.Phone,
		Email:     params.Email,
		Live:      true,
		CreatedAt: now,
		UpdatedAt: now,
	}, event, nil
}

// UpdateContact overwrites a live contact and re-points the wallet index
// when the wallet changed.
func (s *Store) UpdateContact(ctx context.Context, params storage.UpdateContactParams) (storage.Contact, storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, storage.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("storage is not configured")
	}
	now := params.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	owner := ownerText(params.Owner)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("begin update contact: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanContact(tx.QueryRowContext(
		ctx,
		`SELECT owner, id, wallet, name, phone, email, live, created_at, updated_at
		 FROM contacts WHERE owner = ? AND id = ?`,
		owner,
		params.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Contact{}, storage.Event{}, storage.ErrNotFound
		}
		return storage.Contact{}, storage.Event{}, fmt.Errorf("load contact: %w", err)
	}
	if !existing.Live {
		return storage.Contact{}, storage.Event{}, storage.ErrNotFound
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE contacts SET wallet = ?, name = ?, phone = ?, email = ?, updated_at = ?
		 WHERE owner = ? AND id = ?`,
		storage.AddressText(params.Wallet),
		params.Name,
		params.Phone,
		params.Email,
		toMillis(now),
		owner,
		params.ID,
	); err != nil {
		if isWalletUniqueViolation(err) {
			return storage.Contact{}, storage.Event{}, storage.ErrWalletInUse
		}
		return storage.Contact{}, storage.Event{}, fmt.Errorf("update contact: %w", err)
	}

	event, err := appendEvent(ctx, tx, storage.Event{
		Type:      storage.EventContactUpdated,
		Owner:     params.Owner,
		ContactID: params.ID,
		Wallet:    params.Wallet,
		EmittedAt: now,
	})
	if err != nil {
		return storage.Contact{}, storage.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("commit update contact: %w", err)
	}

	updated := existing
	updated.Wallet = params.Wallet
	updated.Name = params.Name
	updated.Phone = params.Phone
	updated.Email = params.Email
	updated.UpdatedAt = now
	return updated, event, nil
}

// RemoveContact tombstones a live contact. The record keeps its id slot and
// field values; the partial wallet index drops the mapping with the liveness
// flip.
func (s *Store) RemoveContact(ctx context.Context, ownerAddr common.Address, id uint64, now time.Time) (storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return storage.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Event{}, fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	owner := ownerText(ownerAddr)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Event{}, fmt.Errorf("begin remove contact: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var wallet string
	var live int64
	err = tx.QueryRowContext(
		ctx,
		`SELECT wallet, live FROM contacts WHERE owner = ? AND id = ?`,
		owner,
		id,
	).Scan(&wallet, &live)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Event{}, storage.ErrNotFound
		}
		return storage.Event{}, fmt.Errorf("load contact: %w", err)
	}
	if live == 0 {
		return storage.Event{}, storage.ErrNotFound
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE contacts SET live = 0, updated_at = ? WHERE owner = ? AND id = ?`,
		toMillis(now),
		owner,
		id,
	); err != nil {
		return storage.Event{}, fmt.Errorf("tombstone contact: %w", err)
	}

	event, err := appendEvent(ctx, tx, storage.Event{
		Type:      storage.EventContactRemoved,
		Owner:     ownerAddr,
		ContactID: id,
		Wallet:    storage.AddressFromText(wallet),
		EmittedAt: now,
	})
	if err != nil {
		return storage.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.Event{}, fmt.Errorf("commit remove contact: %w", err)
	}
	return event, nil
}

// GetContact returns one live contact; tombstones are invisible to readers.
func (s *Store) GetContact(ctx context.Context, ownerAddr common.Address, id uint64) (storage.Contact, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Contact{}, fmt.Errorf("storage is not configured")
	}
	contact, err := scanContact(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT owner, id, wallet, name, phone, email, live, created_at, updated_at
		 FROM contacts WHERE owner = ? AND id = ? AND live = 1`,
		ownerText(ownerAddr),
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Contact{}, storage.ErrNotFound
		}
		return storage.Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

// FindContactIDByWallet resolves a wallet to its live contact id, or 0.
func (s *Store) FindContactIDByWallet(ctx context.Context, ownerAddr common.Address, wallet common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if wallet == (common.Address{}) {
		return 0, nil
	}
	var id uint64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id FROM contacts WHERE owner = ? AND wallet = ? AND live = 1`,
		ownerText(ownerAddr),
		storage.AddressText(wallet),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("find contact by wallet: %w", err)
	}
	return id, nil
}

// ListContacts pages over the owner's full id sequence. The limit bounds the
// id slots scanned, not the live contacts returned; tombstones inside the
// window consume slots and are skipped.
func (s *Store) ListContacts(ctx context.Context, ownerAddr common.Address, start, limit uint64) ([]storage.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit == 0 {
		return []storage.Contact{}, nil
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT owner, id, wallet, name, phone, email, live, created_at, updated_at
		 FROM contacts WHERE owner = ? ORDER BY id LIMIT ? OFFSET ?`,
		ownerText(ownerAddr),
		int64(min(limit, maxListWindow)),
		int64(min(start, maxListWindow)),
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]storage.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if !contact.Live {
			continue
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// ListEvents pages over the owner's change log in emission order, narrowed
// by the query.
func (s *Store) ListEvents(ctx context.Context, ownerAddr common.Address, query storage.EventQuery, start, limit uint64) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit == 0 {
		return []storage.Event{}, nil
	}

	clauses := []string{"owner = ?"}
	args := []any{ownerText(ownerAddr)}
	if len(query.Types) > 0 {
		clause, clauseArgs := inClause("event_type", len(query.Types))
		clauses = append(clauses, clause)
		for i, value := range query.Types {
			clauseArgs[i] = string(value)
		}
		args = append(args, clauseArgs...)
	}
	if len(query.ContactIDs) > 0 {
		clause, clauseArgs := inClause("contact_id", len(query.ContactIDs))
		clauses = append(clauses, clause)
		for i, value := range query.ContactIDs {
			clauseArgs[i] = int64(value)
		}
		args = append(args, clauseArgs...)
	}
	if len(query.Wallets) > 0 {
		clause, clauseArgs := inClause("wallet", len(query.Wallets))
		clauses = append(clauses, clause)
		for i, value := range query.Wallets {
			clauseArgs[i] = storage.AddressText(value)
		}
		args = append(args, clauseArgs...)
	}
	args = append(args, int64(min(limit, maxListWindow)), int64(min(start, maxListWindow)))

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, owner, event_type, contact_id, wallet, emitted_at FROM events
		 WHERE `+strings.Join(clauses, " AND ")+`
		 ORDER BY seq LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]storage.Event, 0)
	for rows.Next() {
		var (
			event     storage.Event
			owner     string
			eventType string
			wallet    string
			emittedAt int64
		)
		if err := rows.Scan(&event.Seq, &owner, &eventType, &event.ContactID, &wallet, &emittedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Type = storage.EventType(eventType)
		event.Owner = ownerFromText(owner)
		event.Wallet = storage.AddressFromText(wallet)
		event.EmittedAt = fromMillis(emittedAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// maxListWindow caps LIMIT/OFFSET casts; API-level clamping keeps windows
// far below this.
const maxListWindow = uint64(1) << 31

// zeroOwnerText keys the zero account's directory. AddressText folds the
// zero address to "", which is reserved for the no-wallet encoding.
const zeroOwnerText = "0x0000000000000000000000000000000000000000"

func ownerText(owner common.Address) string {
	if text := storage.AddressText(owner); text != "" {
		return text
	}
	return zeroOwnerText
}

func ownerFromText(value string) common.Address {
	return common.HexToAddress(value)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (storage.Contact, error) {
	var (
		contact   storage.Contact
		owner     string
		wallet    string
		live      int64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&owner, &contact.ID, &wallet, &contact.Name, &contact.Phone, &contact.Email, &live, &createdAt, &updatedAt); err != nil {
		return storage.Contact{}, err
	}
	contact.Owner = ownerFromText(owner)
	contact.Wallet = storage.AddressFromText(wallet)
	contact.Live = live != 0
	contact.CreatedAt = fromMillis(createdAt)
	contact.UpdatedAt = fromMillis(updatedAt)
	return contact, nil
}

func ownerLastID(ctx context.Context, tx *sql.Tx, owner string) (uint64, error) {
	var lastID uint64
	err := tx.QueryRowContext(ctx, `SELECT last_id FROM owner_counters WHERE owner = ?`, owner).Scan(&lastID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load owner counter: %w", err)
	}
	return lastID, nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, event storage.Event) (storage.Event, error) {
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO events (owner, event_type, contact_id, wallet, emitted_at) VALUES (?, ?, ?, ?, ?)`,
		ownerText(event.Owner),
		string(event.Type),
		event.ContactID,
		storage.AddressText(event.Wallet),
		toMillis(event.EmittedAt),
	)
	if err != nil {
		return storage.Event{}, fmt.Errorf("append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return storage.Event{}, fmt.Errorf("event sequence: %w", err)
	}
	event.Seq = uint64(seq)
	return event, nil
}

// inClause builds "column IN (?, ...)" with n placeholders and returns the
// argument slots for the caller to fill.
func inClause(column string, n int) (string, []any) {
	placeholders := strings.Repeat("?, ", n)
	return column + " IN (" + placeholders[:len(placeholders)-2] + ")", make([]any, n)
}

func isWalletUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "contacts.")
}

var _ storage.ContactStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)
