package replay

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mechlane/arena/internal/battle"
)

// Entry summarises one replay bundle found on disk.
type Entry struct {
	Dir          string         `json:"dir"`
	BattleID     string         `json:"battle_id"`
	ScenarioName string         `json:"scenario_name"`
	Seed         uint32         `json:"seed"`
	Complete     bool           `json:"complete"`
	Outcome      battle.Outcome `json:"outcome,omitempty"`
	Ticks        int            `json:"ticks,omitempty"`
}

// List walks root and returns every bundle header beneath it, ordered by scenario, seed and
// directory. Bundles still being written have no result and are listed as incomplete.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != headerFile {
			return nil
		}
		header, err := ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		entry := Entry{
			Dir:          filepath.Dir(path),
			BattleID:     header.BattleID,
			ScenarioName: header.ScenarioName,
			Seed:         header.Seed,
		}
		if header.Result != nil {
			entry.Complete = true
			entry.Outcome = header.Result.Outcome
			entry.Ticks = header.Result.Ticks
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ScenarioName != b.ScenarioName {
			return a.ScenarioName < b.ScenarioName
		}
		if a.Seed != b.Seed {
			return a.Seed < b.Seed
		}
		return a.Dir < b.Dir
	})
	return entries, nil
}
