package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type mockRelayer struct {
	relayFn func(ctx context.Context, event string, data json.RawMessage) error
}

func (m *mockRelayer) RelayEvent(ctx context.Context, event string, data json.RawMessage) error {
	return m.relayFn(ctx, event, data)
}

func TestEventRelay_Forwards(t *testing.T) {
	var gotEvent string
	var gotData json.RawMessage
	relay := NewEventRelay(&mockRelayer{relayFn: func(ctx context.Context, event string, data json.RawMessage) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected relay context to carry a deadline")
		}
		gotEvent, gotData = event, data
		return nil
	}}, silentLogger())

	h := relay.Handler("emergency_broadcast")
	if err := h(json.RawMessage(`{"message":"lockdown"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotEvent != "emergency_broadcast" || string(gotData) != `{"message":"lockdown"}` {
		t.Errorf("unexpected relay %s %s", gotEvent, gotData)
	}
}

func TestEventRelay_DropsInvalidJSON(t *testing.T) {
	relay := NewEventRelay(&mockRelayer{relayFn: func(context.Context, string, json.RawMessage) error {
		t.Fatal("RelayEvent should not be called")
		return nil
	}}, silentLogger())

	if err := relay.Handler("notification")(json.RawMessage(`{broken`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEventRelay_PublishError(t *testing.T) {
	relay := NewEventRelay(&mockRelayer{relayFn: func(context.Context, string, json.RawMessage) error {
		return errors.New("channel closed")
	}}, silentLogger())

	if err := relay.Handler("notification")(nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestEventRelay_TypedPayloadsStillRelayed(t *testing.T) {
	var relayed []string
	relay := NewEventRelay(&mockRelayer{relayFn: func(_ context.Context, event string, _ json.RawMessage) error {
		relayed = append(relayed, event)
		return nil
	}}, silentLogger())

	payloads := map[string]string{
		"notification":        `{"id":"n-1","title":"Pickup","message":"Sara is ready","type":"pickup"}`,
		"pickup_update":       `{"pickupId":"p-1","status":"COMPLETED","studentName":"Sara"}`,
		"parent_broadcast":    `{"type":"INFO","message":"early release"}`,
		"emergency_broadcast": `["not","an","object"]`,
	}
	for _, ev := range RelayedEvents {
		if err := relay.Handler(ev)(json.RawMessage(payloads[ev])); err != nil {
			t.Fatalf("%s: unexpected error: %v", ev, err)
		}
	}

	if len(relayed) != len(RelayedEvents) {
		t.Errorf("expected %d relayed events, got %v", len(RelayedEvents), relayed)
	}
}
