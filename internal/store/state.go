package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"techradar/internal/classify"
	"techradar/internal/trend"
)

// snapshot is the on-disk trend-state document.
type snapshot struct {
	SavedAt time.Time         `json:"saved_at"`
	State   trend.State       `json:"state"`
	Stats   trend.WindowStats `json:"stats"`
}

// LoadPrevious returns the prior window's trend state. Any load failure
// (missing file, corrupt JSON) degrades to an empty state, the same as
// a first run, and never aborts the run.
func (s *Store) LoadPrevious() trend.State {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Could not read trend state, starting fresh: %v", err)
		}
		return trend.Empty()
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("Corrupt trend state, starting fresh: %v", err)
		return trend.Empty()
	}
	if snap.State.Tags == nil {
		snap.State.Tags = make(map[string]trend.Tag)
	}
	return snap.State
}

// Save persists the batch to the archive and swaps in the new trend
// state. Failure leaves the previous snapshot untouched and is
// run-fatal for the caller, since it breaks trend continuity.
func (s *Store) Save(batch []classify.ScoredItem, state trend.State, stats trend.WindowStats) error {
	if _, err := s.archiveBatch(batch, state.WindowStart, state.WindowEnd); err != nil {
		return fmt.Errorf("archiving batch: %w", err)
	}

	if err := s.writeState(state, stats); err != nil {
		return fmt.Errorf("writing trend state: %w", err)
	}

	log.Printf("Saved %d items and trend state for window ending %s",
		len(batch), state.WindowEnd.Format(time.RFC3339))
	return nil
}

// writeState writes the snapshot to a temp file and renames it into
// place, so a reader never observes a partial write.
func (s *Store) writeState(state trend.State, stats trend.WindowStats) error {
	snap := snapshot{SavedAt: time.Now().UTC(), State: state, Stats: stats}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dataDir, "trend-state-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.statePath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
