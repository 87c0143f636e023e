package events

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var (
		mu       sync.Mutex
		received []storage.Event
	)
	handler := Handler(func(event storage.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	})
	if err := bus.Subscribe(handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := storage.Event{
		Seq:       7,
		Type:      storage.EventContactAdded,
		Owner:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		ContactID: 3,
	}
	bus.Publish(want)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d events, want 1", len(received))
	}
	if received[0].Seq != want.Seq || received[0].Type != want.Type || received[0].ContactID != want.ContactID {
		t.Fatalf("received %+v, want %+v", received[0], want)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var count int
	handler := Handler(func(storage.Event) { count++ })
	if err := bus.Subscribe(handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Unsubscribe(handler); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	bus.Publish(storage.Event{Seq: 1, Type: storage.EventContactAdded})
	if count != 0 {
		t.Fatalf("handler ran %d times after unsubscribe", count)
	}
}

func TestNilBusIsInert(t *testing.T) {
	t.Parallel()

	var bus *Bus
	bus.Publish(storage.Event{Seq: 1})
	if err := bus.Subscribe(func(storage.Event) {}); err != nil {
		t.Fatalf("nil bus subscribe: %v", err)
	}
	bus.WaitAsync()
}

func TestLogSinkWritesEventLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "[contacts] ", 0)
	sink := LogSink(logger)

	sink(storage.Event{
		Seq:       9,
		Type:      storage.EventContactRemoved,
		Owner:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		ContactID: 4,
	})

	line := buf.String()
	if !strings.Contains(line, "seq=9") || !strings.Contains(line, string(storage.EventContactRemoved)) {
		t.Fatalf("unexpected log line: %q", line)
	}
}
