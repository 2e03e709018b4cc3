package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"eiademand/internal/core"
)

func TestNewMessage(t *testing.T) {
	top := core.TopSet{{Category: "Natural Gas", Total: 900}, {Category: "Nuclear", Total: 500}}
	msg := NewMessage("fuel-type", "2026-02-09", "2026-02-16", core.GWh, true, top, 14)

	if _, err := uuid.Parse(msg.ID); err != nil {
		t.Errorf("NewMessage() ID = %q is not a uuid: %v", msg.ID, err)
	}
	if msg.Dataset != "fuel-type" || msg.Unit != core.GWh || !msg.EasternOnly || msg.Points != 14 {
		t.Errorf("NewMessage() = %+v", msg)
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("NewMessage() Timestamp should be recent")
	}

	top[0].Total = 0
	if msg.TopCategories[0].Total != 900 {
		t.Error("NewMessage() should copy the top set")
	}

	other := NewMessage("fuel-type", "2026-02-09", "2026-02-16", core.GWh, true, top, 14)
	if other.ID == msg.ID {
		t.Error("message ids should be unique")
	}
}

func TestMessage_JSON(t *testing.T) {
	msg := NewMessage("region", "2026-02-09", "2026-02-16", core.MWh, true,
		core.TopSet{{Category: "PJM", Total: 1234.5}}, 8)

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.Contains(string(body), `"top_categories":[{"category":"PJM","total":1234.5}]`) {
		t.Errorf("ToJSON() = %s", body)
	}

	parsed, err := MessageFromJSON(body)
	if err != nil {
		t.Fatalf("MessageFromJSON() error = %v", err)
	}
	if parsed.ID != msg.ID || parsed.Dataset != "region" || len(parsed.TopCategories) != 1 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestMessage_InvalidJSON(t *testing.T) {
	if _, err := MessageFromJSON([]byte(`{"points": "many"}`)); err == nil {
		t.Error("MessageFromJSON() should fail with invalid JSON")
	}
}
