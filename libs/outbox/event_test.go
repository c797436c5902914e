package outbox

import (
	"encoding/json"
	"testing"
)

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("appointment", "appt-1", "booking.appointment.confirmed.v1", map[string]string{"status": "CONFIRMED"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var body map[string]string
	if err := json.Unmarshal(evt.Payload, &body); err != nil || body["status"] != "CONFIRMED" {
		t.Fatalf("unexpected payload %s", evt.Payload)
	}
	if _, err := NewEvent("appointment", "x", "y", func() {}); err == nil {
		t.Fatal("expected marshal error for unsupported payload")
	}
}
