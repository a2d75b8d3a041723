package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_ProductionEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "Production").Info("flushed", "tracking_id", "trk-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["tracking_id"] != "trk-1" {
		t.Errorf("missing tracking_id in %v", entry)
	}
}

func TestNew_DevelopmentEmitsTextWithDebug(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "development").Debug("scroll applied")

	if !strings.Contains(buf.String(), "msg=\"scroll applied\"") {
		t.Errorf("expected text debug line, got %q", buf.String())
	}
}
