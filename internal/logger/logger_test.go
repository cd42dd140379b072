package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("dropped")
	log.Warn().Str("exam_id", "e1").Msg("kept")

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "kept" || line["service"] != "exstem-runner" || line["exam_id"] != "e1" {
		t.Errorf("line = %v", line)
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "verbose", "json")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("level = %s", zerolog.GlobalLevel())
	}
}
