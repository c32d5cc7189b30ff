package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/strategy"
)

// State is the engine's full internal state, for restarts.
type State struct {
	Positions []strategy.Position `json:"positions"`
	Risk      risk.State          `json:"risk"`
	Balance   float64             `json:"balance"`
	SavedAt   time.Time           `json:"saved_at"`
}

// Snapshot captures the current state.
func (e *Engine) Snapshot(now time.Time) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Positions: e.positionsLocked(),
		Risk:      e.risk,
		Balance:   e.balance,
		SavedAt:   now,
	}
}

// Restore replaces the engine state with s.
func (e *Engine) Restore(s State) error {
	positions := make(map[string]strategy.Position, len(s.Positions))
	for _, p := range s.Positions {
		if p.Symbol == "" || p.Quantity <= 0 || p.EntryPrice <= 0 {
			return fmt.Errorf("%w: bad position %+v", ErrInput, p)
		}
		if _, dup := positions[p.Symbol]; dup {
			return fmt.Errorf("%w: two positions for %s", ErrInput, p.Symbol)
		}
		positions[p.Symbol] = p
	}
	if s.Balance <= 0 {
		return fmt.Errorf("%w: balance %.2f must be positive", ErrInput, s.Balance)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions = positions
	e.risk = s.Risk
	e.balance = s.Balance
	e.observeRisk()
	if e.m != nil {
		e.m.OpenPositions.Set(float64(len(positions)))
	}
	return nil
}

// SaveState writes s as JSON via a temp file and rename, so a crash never
// leaves a half written file behind.
func SaveState(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadState reads a state file. A missing file returns an error matching
// os.ErrNotExist.
func LoadState(path string) (State, error) {
	var s State
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode state %s: %w", path, err)
	}
	return s, nil
}
