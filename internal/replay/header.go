package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mechlane/arena/internal/battle"
	"mechlane/arena/internal/scenario"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 1

// Header is the metadata persisted alongside a replay bundle. The embedded scenario carries the
// effective seed so the battle can be rebuilt exactly.
type Header struct {
	SchemaVersion int                `json:"schema_version"`
	BattleID      string             `json:"battle_id"`
	Seed          uint32             `json:"seed"`
	ScenarioName  string             `json:"scenario_name"`
	FrameEvery    int                `json:"frame_every"`
	Scenario      *scenario.Scenario `json:"scenario,omitempty"`
	Result        *battle.Result     `json:"result,omitempty"`
	FilePointer   string             `json:"file_pointer"`
}

// Validate ensures the header contains enough information for verification tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.BattleID) == "" {
		return fmt.Errorf("battle_id must not be empty")
	}
	//1.- Ensure tooling can locate the replay artefacts reliably.
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to the provided file path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and decodes a replay header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
