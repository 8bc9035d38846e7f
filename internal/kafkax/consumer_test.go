package kafkax

import (
	"context"
	"errors"
	"testing"

	"github.com/orderflow/orderflow/internal/events"
)

func TestRegistryDispatch(t *testing.T) {
	var got string
	reg := Registry{}
	reg.Register(events.TypeOrderCreated, func(_ context.Context, env events.Envelope) error {
		got = env.EventID
		return nil
	})
	reg.Register(events.TypePaymentSucceeded, func(context.Context, events.Envelope) error {
		return errors.New("handler error")
	})

	dispatched, err := reg.Dispatch(context.Background(), events.Envelope{
		EventID: "E1", EventType: events.TypeOrderCreated,
	})
	if !dispatched || err != nil {
		t.Fatalf("dispatch: dispatched=%v err=%v", dispatched, err)
	}
	if got != "E1" {
		t.Fatalf("handler saw event %q", got)
	}

	dispatched, err = reg.Dispatch(context.Background(), events.Envelope{
		EventType: events.TypePaymentSucceeded,
	})
	if !dispatched || err == nil {
		t.Fatalf("handler error must propagate: dispatched=%v err=%v", dispatched, err)
	}
}

func TestRegistryUnknownType(t *testing.T) {
	reg := Registry{}
	dispatched, err := reg.Dispatch(context.Background(), events.Envelope{EventType: "Unknown"})
	if dispatched || err != nil {
		t.Fatalf("unknown type: dispatched=%v err=%v", dispatched, err)
	}
}

func TestRegistryDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("want panic on duplicate registration")
		}
	}()
	reg := Registry{}
	reg.Register(events.TypeOrderCreated, func(context.Context, events.Envelope) error { return nil })
	reg.Register(events.TypeOrderCreated, func(context.Context, events.Envelope) error { return nil })
}
