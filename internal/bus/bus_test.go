package bus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func TestMemoryBusSendDispatchesToSingleHandler(t *testing.T) {
	b := NewMemoryBus()
	var got Envelope
	b.Handle(TypeExecuteFileCheck, func(_ context.Context, env Envelope) error {
		got = env
		return nil
	})
	err := b.Send(context.Background(), Envelope{MessageID: "m1", MessageType: TypeExecuteFileCheck, ClientID: "clientA"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.MessageID != "m1" {
		t.Fatalf("handler did not receive the envelope: %+v", got)
	}
}

func TestMemoryBusSendNoHandlerErrors(t *testing.T) {
	b := NewMemoryBus()
	err := b.Send(context.Background(), Envelope{MessageType: "Unregistered"})
	if err == nil {
		t.Fatal("expected error for unregistered message type")
	}
}

func TestMemoryBusPublishFansOut(t *testing.T) {
	b := NewMemoryBus()
	count := 0
	b.Handle(TypeFileDiscovered, func(_ context.Context, _ Envelope) error { count++; return nil })
	b.Handle(TypeFileDiscovered, func(_ context.Context, _ Envelope) error { count++; return nil })
	if err := b.Publish(context.Background(), Envelope{MessageType: TypeFileDiscovered}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected both handlers invoked, got %d", count)
	}
}

func TestFileQueueBusRecoversFailedDelivery(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileQueueBus(dir)
	if err != nil {
		t.Fatalf("NewFileQueueBus: %v", err)
	}
	defer b.Close()

	attempts := 0
	b.Handle(TypeExecuteFileCheck, func(_ context.Context, _ Envelope) error {
		attempts++
		if attempts == 1 {
			return errors.New("simulated failure")
		}
		return nil
	})

	err = b.Send(context.Background(), Envelope{MessageID: "m1", MessageType: TypeExecuteFileCheck})
	if err == nil {
		t.Fatal("expected first send to fail")
	}

	if err := b.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected Recover to redeliver once, got %d attempts", attempts)
	}

	// A second Recover should be a no-op: the entry was removed after success.
	if err := b.Recover(context.Background()); err != nil {
		t.Fatalf("second Recover: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected no further redelivery, got %d attempts", attempts)
	}
}

func TestFileQueueBusOpensUnderGivenDir(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileQueueBus(dir)
	if err != nil {
		t.Fatalf("NewFileQueueBus: %v", err)
	}
	defer b.Close()
	if _, err := filepath.Abs(dir); err != nil {
		t.Fatal(err)
	}
}
