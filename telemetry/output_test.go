package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/murmursim/murmur/swarm"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("empty dir should disable output")
	}
	// All writes must be safe no-ops on the nil manager.
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Errorf("nil WriteTelemetry: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := om.WriteTelemetry(WindowStats{WindowEndStep: 100, Population: 50}); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteTelemetry(WindowStats{WindowEndStep: 200, Population: 48}); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteGroups(100, []swarm.Group{{ID: 0, Size: 12}}); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("telemetry.csv has %d lines, want header + 2 records", len(lines))
	}
	if !strings.Contains(lines[0], "window_end") || !strings.Contains(lines[0], "population") {
		t.Errorf("header missing expected columns: %q", lines[0])
	}
	if strings.Contains(lines[1], "window_end") {
		t.Error("header repeated in record rows")
	}

	groups, err := os.ReadFile(filepath.Join(dir, "groups.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(groups), "group_id") {
		t.Errorf("groups.csv missing header: %q", string(groups))
	}
}
