// Package bbolt provides a BoltDB-backed contact directory implementation.
package bbolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
	"go.etcd.io/bbolt"
)

const (
	contactsBucket = "contacts"
	walletsBucket  = "wallets"
	countersBucket = "counters"
	eventsBucket   = "events"
)

// Store provides a BoltDB-backed contact store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddContact assigns the owner's next id and inserts one live contact.
func (s *Store) AddContact(ctx context.Context, params storage.AddContactParams) (storage.Contact, storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, storage.Event{}, err
	}
	if s == nil || s.db == nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("storage is not configured")
	}
	now := params.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		contact storage.Contact
		event   storage.Event
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		counters := tx.Bucket([]byte(countersBucket))
		contacts := tx.Bucket([]byte(contactsBucket))
		wallets := tx.Bucket([]byte(walletsBucket))
		if counters == nil || contacts == nil || wallets == nil {
			return fmt.Errorf("contact buckets are missing")
		}

		ownerKey := []byte(ownerText(params.Owner))
		newID := decodeID(counters.Get(ownerKey)) + 1

		walletText := storage.AddressText(params.Wallet)
		if walletText != "" {
			if existing := wallets.Get(walletKey(params.Owner, params.Wallet)); existing != nil {
				return storage.ErrDuplicateWallet
			}
		}

		contact = storage.Contact{
			Owner:     params.Owner,
			ID:        newID,
			Wallet:    params.Wallet,
			Name:      params.Name,
			Phone:     params.Phone,
			Email:     params.Email,
			Live:      true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := putContact(contacts, contact); err != nil {
			return err
		}
		if walletText != "" {
			if err := wallets.Put(walletKey(params.Owner, params.Wallet), encodeID(newID)); err != nil {
				return fmt.Errorf("index wallet: %w", err)
			}
		}
		if err := counters.Put(ownerKey, encodeID(newID)); err != nil {
			return fmt.Errorf("advance owner counter: %w", err)
		}

		var err error
		event, err = appendEvent(tx, storage.Event{
			Type:      storage.EventContactAdded,
			Owner:     params.Owner,
			ContactID: newID,
			Wallet:    params.Wallet,
			EmittedAt: now,
		})
		return err
	})
	if err != nil {
		return storage.Contact{}, storage.Event{}, err
	}
	return contact, event, nil
}

// UpdateContact overwrites every field of one live contact.
func (s *Store) UpdateContact(ctx context.Context, params storage.UpdateContactParams) (storage.Contact, storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, storage.Event{}, err
	}
	if s == nil || s.db == nil {
		return storage.Contact{}, storage.Event{}, fmt.Errorf("storage is not configured")
	}
	now := params.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		contact storage.Contact
		event   storage.Event
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		contacts := tx.Bucket([]byte(contactsBucket))
		wallets := tx.Bucket([]byte(walletsBucket))
		if contacts == nil || wallets == nil {
			return fmt.Errorf("contact buckets are missing")
		}

		current, err := getContact(contacts, params.Owner, params.ID)
		if err != nil {
			return err
		}
		if !current.Live {
			return storage.ErrNotFound
		}

		newWalletText := storage.AddressText(params.Wallet)
		if newWalletText != "" && params.Wallet != current.Wallet {
			if existing := wallets.Get(walletKey(params.Owner, params.Wallet)); existing != nil {
				return storage.ErrWalletInUse
			}
		}

		if params.Wallet != current.Wallet {
			if storage.AddressText(current.Wallet) != "" {
				if err := wallets.Delete(walletKey(params.Owner, current.Wallet)); err != nil {
					return fmt.Errorf("drop wallet index: %w", err)
				}
			}
			if newWalletText != "" {
				if err := wallets.Put(walletKey(params.Owner, params.Wallet), encodeID(params.ID)); err != nil {
					return fmt.Errorf("index wallet: %w", err)
				}
			}
		}

		contact = current
		contact.Wallet = params.Wallet
		contact.Name = params.Name
		contact.Phone = params.Phone
		contact.Email = params.Email
		contact.UpdatedAt = now
		if err := putContact(contacts, contact); err != nil {
			return err
		}

		event, err = appendEvent(tx, storage.Event{
			Type:      storage.EventContactUpdated,
			Owner:     params.Owner,
			ContactID: params.ID,
			Wallet:    params.Wallet,
			EmittedAt: now,
		})
		return err
	})
	if err != nil {
		return storage.Contact{}, storage.Event{}, err
	}
	return contact, event, nil
}

// RemoveContact tombstones one live contact and frees its wallet mapping.
func (s *Store) RemoveContact(ctx context.Context, owner common.Address, id uint64, now time.Time) (storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return storage.Event{}, err
	}
	if s == nil || s.db == nil {
		return storage.Event{}, fmt.Errorf("storage is not configured")
	}
	emittedAt := now.UTC()
	if emittedAt.IsZero() {
		emittedAt = time.Now().UTC()
	}

	var event storage.Event
	err := s.db.Update(func(tx *bbolt.Tx) error {
		contacts := tx.Bucket([]byte(contactsBucket))
		wallets := tx.Bucket([]byte(walletsBucket))
		if contacts == nil || wallets == nil {
			return fmt.Errorf("contact buckets are missing")
		}

		current, err := getContact(contacts, owner, id)
		if err != nil {
			return err
		}
		if !current.Live {
			return storage.ErrNotFound
		}

		if storage.AddressText(current.Wallet) != "" {
			if err := wallets.Delete(walletKey(owner, current.Wallet)); err != nil {
				return fmt.Errorf("drop wallet index: %w", err)
			}
		}

		current.Live = false
		current.UpdatedAt = emittedAt
		if err := putContact(contacts, current); err != nil {
			return err
		}

		event, err = appendEvent(tx, storage.Event{
			Type:      storage.EventContactRemoved,
			Owner:     owner,
			ContactID: id,
			Wallet:    current.Wallet,
			EmittedAt: emittedAt,
		})
		return err
	})
	if err != nil {
		return storage.Event{}, err
	}
	return event, nil
}

// GetContact fetches one live contact.
func (s *Store) GetContact(ctx context.Context, owner common.Address, id uint64) (storage.Contact, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contact{}, err
	}
	if s == nil || s.db == nil {
		return storage.Contact{}, fmt.Errorf("storage is not configured")
	}

	var contact storage.Contact
	err := s.db.View(func(tx *bbolt.Tx) error {
		contacts := tx.Bucket([]byte(contactsBucket))
		if contacts == nil {
			return fmt.Errorf("contact buckets are missing")
		}
		current, err := getContact(contacts, owner, id)
		if err != nil {
			return err
		}
		if !current.Live {
			return storage.ErrNotFound
		}
		contact = current
		return nil
	})
	if err != nil {
		return storage.Contact{}, err
	}
	return contact, nil
}

// FindContactIDByWallet resolves a wallet to a live contact id, or 0.
func (s *Store) FindContactIDByWallet(ctx context.Context, owner, wallet common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if storage.AddressText(wallet) == "" {
		return 0, nil
	}

	var id uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		contacts := tx.Bucket([]byte(contactsBucket))
		wallets := tx.Bucket([]byte(walletsBucket))
		if contacts == nil || wallets == nil {
			return fmt.Errorf("contact buckets are missing")
		}
		payload := wallets.Get(walletKey(owner, wallet))
		if payload == nil {
			return nil
		}
		candidate := decodeID(payload)
		contact, err := getContact(contacts, owner, candidate)
		if err != nil || !contact.Live {
			return err
		}
		id = candidate
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListContacts returns the live contacts within a window of id slots.
// Tombstoned slots count against the window without producing results.
func (s *Store) ListContacts(ctx context.Context, owner common.Address, start, limit uint64) ([]storage.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	results := make([]storage.Contact, 0)
	if limit == 0 {
		return results, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		contacts := tx.Bucket([]byte(contactsBucket))
		if contacts == nil {
			return fmt.Errorf("contact buckets are missing")
		}

		prefix := ownerPrefix(owner)
		cursor := contacts.Cursor()
		var slot uint64
		for key, payload := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, payload = cursor.Next() {
			slot++
			if slot <= start {
				continue
			}
			if slot > start+limit {
				break
			}
			var contact storage.Contact
			if err := json.Unmarshal(payload, &contact); err != nil {
				return fmt.Errorf("unmarshal contact: %w", err)
			}
			if contact.Live {
				results = append(results, contact)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListEvents returns a window of the owner's directory events in sequence
// order, narrowed by the query.
func (s *Store) ListEvents(ctx context.Context, owner common.Address, query storage.EventQuery, start, limit uint64) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	results := make([]storage.Event, 0)
	if limit == 0 {
		return results, nil
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(eventsBucket))
		if events == nil {
			return fmt.Errorf("contact buckets are missing")
		}

		prefix := ownerPrefix(owner)
		cursor := events.Cursor()
		var matched uint64
		for key, payload := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, payload = cursor.Next() {
			var event storage.Event
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			if !query.Matches(event) {
				continue
			}
			matched++
			if matched <= start {
				continue
			}
			results = append(results, event)
			if uint64(len(results)) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{contactsBucket, walletsBucket, countersBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func getContact(bucket *bbolt.Bucket, owner common.Address, id uint64) (storage.Contact, error) {
	payload := bucket.Get(contactKey(owner, id))
	if payload == nil {
		return storage.Contact{}, storage.ErrNotFound
	}
	var contact storage.Contact
	if err := json.Unmarshal(payload, &contact); err != nil {
		return storage.Contact{}, fmt.Errorf("unmarshal contact: %w", err)
	}
	return contact, nil
}

func putContact(bucket *bbolt.Bucket, contact storage.Contact) error {
	payload, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}
	if err := bucket.Put(contactKey(contact.Owner, contact.ID), payload); err != nil {
		return fmt.Errorf("put contact: %w", err)
	}
	return nil
}

func appendEvent(tx *bbolt.Tx, event storage.Event) (storage.Event, error) {
	events := tx.Bucket([]byte(eventsBucket))
	if events == nil {
		return storage.Event{}, fmt.Errorf("contact buckets are missing")
	}
	seq, err := events.NextSequence()
	if err != nil {
		return storage.Event{}, fmt.Errorf("event sequence: %w", err)
	}
	event.Seq = seq
	payload, err := json.Marshal(event)
	if err != nil {
		return storage.Event{}, fmt.Errorf("marshal event: %w", err)
	}
	if err := events.Put(eventKey(event.Owner, seq), payload); err != nil {
		return storage.Event{}, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}

func ownerText(owner common.Address) string {
	return strings.ToLower(owner.Hex())
}

// ownerPrefix scopes a cursor scan to one owner's keys. The trailing slash
// keeps 0x..aa from matching 0x..aab prefixes.
func ownerPrefix(owner common.Address) []byte {
	return []byte(ownerText(owner) + "/")
}

func contactKey(owner common.Address, id uint64) []byte {
	return append(ownerPrefix(owner), encodeID(id)...)
}

func walletKey(owner, wallet common.Address) []byte {
	return append(ownerPrefix(owner), []byte(storage.AddressText(wallet))...)
}

func eventKey(owner common.Address, seq uint64) []byte {
	return append(ownerPrefix(owner), encodeID(seq)...)
}

// encodeID renders ids big-endian so byte order matches numeric order.
func encodeID(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func decodeID(payload []byte) uint64 {
	if len(payload) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(payload)
}

var _ storage.ContactStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)
