package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// resumeSnapshot is the periodic checkpoint saved next to the pin
// file. The actual piece bytes are already durable via the BoltDB
// piece-completion store internal/session wires into the client, so this
// snapshot only records progress counters. It is write-only: nothing in
// the engine reads it back when a torrent is loaded.
type resumeSnapshot struct {
	InfoHash       string    `json:"info_hash"`
	Name           string    `json:"name"`
	PiecesComplete int       `json:"pieces_complete"`
	PiecesTotal    int       `json:"pieces_total"`
	SavedAt        time.Time `json:"saved_at"`
}

const resumeFileName = ".resume.json"

// resumeLoop periodically writes a resume snapshot until stopped.
func (e *Engine) resumeLoop() {
	ticker := time.NewTicker(e.cfg.ResumeSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopResume:
			return
		case <-ticker.C:
			if err := e.saveResumeData(); err != nil {
				e.log.Warn().Err(err).Msg("failed to save resume data")
			}
		}
	}
}

func (e *Engine) saveResumeData() error {
	info := e.t.Info()
	if info == nil {
		return nil
	}
	snap := resumeSnapshot{
		InfoHash:       e.t.InfoHash().HexString(),
		Name:           info.Name,
		PiecesTotal:    e.t.NumPieces(),
		PiecesComplete: e.t.Stats().PiecesComplete,
		SavedAt:        time.Now(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	path := filepath.Join(e.CacheDir, resumeFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
