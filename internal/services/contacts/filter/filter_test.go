package filter

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
)

func TestParseEventFilterEmpty(t *testing.T) {
	t.Parallel()

	query, err := ParseEventFilter("   ")
	if err != nil {
		t.Fatalf("parse empty filter: %v", err)
	}
	if len(query.Types) != 0 || len(query.ContactIDs) != 0 || len(query.Wallets) != 0 {
		t.Fatalf("expected empty query, got %+v", query)
	}
}

func TestParseEventFilter(t *testing.T) {
	t.Parallel()

	wallet := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	tests := []struct {
		name   string
		filter string
		want   storage.EventQuery
	}{
		{
			name:   "single type",
			filter: `type = "contact.added"`,
			want:   storage.EventQuery{Types: []storage.EventType{storage.EventContactAdded}},
		},
		{
			name:   "type union",
			filter: `type = "contact.added" OR type = "contact.removed"`,
			want: storage.EventQuery{Types: []storage.EventType{
				storage.EventContactAdded,
				storage.EventContactRemoved,
			}},
		},
		{
			name:   "contact and wallet",
			filter: `contact_id = 7 AND wallet = "0x00000000000000000000000000000000000000b2"`,
			want: storage.EventQuery{
				ContactIDs: []uint64{7},
				Wallets:    []common.Address{wallet},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseEventFilter(tt.filter)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.filter, err)
			}
			if len(got.Types) != len(tt.want.Types) {
				t.Fatalf("types = %v, want %v", got.Types, tt.want.Types)
			}
			for i := range tt.want.Types {
				if got.Types[i] != tt.want.Types[i] {
					t.Fatalf("types = %v, want %v", got.Types, tt.want.Types)
				}
			}
			if len(got.ContactIDs) != len(tt.want.ContactIDs) {
				t.Fatalf("contact ids = %v, want %v", got.ContactIDs, tt.want.ContactIDs)
			}
			for i := range tt.want.ContactIDs {
				if got.ContactIDs[i] != tt.want.ContactIDs[i] {
					t.Fatalf("contact ids = %v, want %v", got.ContactIDs, tt.want.ContactIDs)
				}
			}
			if len(got.Wallets) != len(tt.want.Wallets) {
				t.Fatalf("wallets = %v, want %v", got.Wallets, tt.want.Wallets)
			}
			for i := range tt.want.Wallets {
				if got.Wallets[i] != tt.want.Wallets[i] {
					t.Fatalf("wallets = %v, want %v", got.Wallets, tt.want.Wallets)
				}
			}
		})
	}
}

func TestParseEventFilterRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter string
	}{
		{name: "unknown field", filter: `owner = "0xabc"`},
		{name: "unknown event type", filter: `type = "contact.renamed"`},
		{name: "unsupported operator", filter: `contact_id > 3`},
		{name: "bad wallet", filter: `wallet = "not-an-address"`},
		{name: "zero contact id", filter: `contact_id = 0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ParseEventFilter(tt.filter); err == nil {
				t.Fatalf("expected error for %q", tt.filter)
			}
		})
	}
}
