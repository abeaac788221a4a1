package backup

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/peoplesafe/sdlcjournal/pkg/store"
)

// FormatVersion is the current snapshot format version.
const FormatVersion = 1

// AppName identifies snapshots written by this program.
const AppName = "sdlcjournal"

// maxSnapshotSize bounds how much Read will consume.
const maxSnapshotSize = 256 << 20

// Snapshot is the complete, still-encrypted content of a journal.
type Snapshot struct {
	Version    int             `json:"version"`
	ExportedAt string          `json:"exportedAt"`
	App        string          `json:"app,omitempty"`
	Entries    []*store.Entry  `json:"entries"`
	Rollups    []*store.Rollup `json:"rollups"`
	Meta       []store.Meta    `json:"meta"`
}

// wireSnapshot distinguishes absent fields from empty ones.
type wireSnapshot struct {
	Version    *int             `json:"version"`
	ExportedAt string           `json:"exportedAt"`
	App        string           `json:"app"`
	Entries    *[]*store.Entry  `json:"entries"`
	Rollups    *[]*store.Rollup `json:"rollups"`
	Meta       *[]store.Meta    `json:"meta"`
}

// FileName returns the conventional backup file name for a date (YYYY-MM-DD).
func FileName(date string) string {
	return fmt.Sprintf("%s-backup-%s.json", AppName, date)
}

// Write encodes snap as indented JSON.
func Write(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Read decodes and validates a snapshot. Any structural problem is reported
// as ErrInvalidFormat.
func Read(r io.Reader) (*Snapshot, error) {
	var wire wireSnapshot
	dec := json.NewDecoder(io.LimitReader(r, maxSnapshotSize))
	if err := dec.Decode(&wire); err != nil {
		return nil, invalid("failed to decode: %v", err)
	}

	if wire.Version == nil {
		return nil, invalid("missing version")
	}
	if wire.Entries == nil {
		return nil, invalid("missing entries")
	}
	if wire.Meta == nil {
		return nil, invalid("missing meta")
	}

	snap := &Snapshot{
		Version:    *wire.Version,
		ExportedAt: wire.ExportedAt,
		App:        wire.App,
		Entries:    *wire.Entries,
		Meta:       *wire.Meta,
	}
	if wire.Rollups != nil {
		snap.Rollups = *wire.Rollups
	}

	if err := Validate(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Validate checks every record of snap. It performs no I/O.
func Validate(snap *Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	if snap.Version < 1 {
		return invalid("version %d", snap.Version)
	}
	if snap.Version > FormatVersion {
		return fmt.Errorf("%w: got %d, max supported %d", ErrUnsupportedVersion, snap.Version, FormatVersion)
	}

	for i, e := range snap.Entries {
		if e == nil {
			return invalid("entries[%d] is null", i)
		}
		if err := e.Validate(); err != nil {
			return invalid("entries[%d]: %v", i, err)
		}
	}
	for i, r := range snap.Rollups {
		if r == nil {
			return invalid("rollups[%d] is null", i)
		}
		if err := r.Validate(); err != nil {
			return invalid("rollups[%d]: %v", i, err)
		}
	}
	for i, m := range snap.Meta {
		if m.Key == "" {
			return invalid("meta[%d] has no key", i)
		}
	}
	return nil
}
