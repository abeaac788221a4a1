package journal

import (
	"context"

	"github.com/peoplesafe/sdlcjournal/internal/disk"
)

// Stats summarizes the journal's storage.
type Stats struct {
	FirstTime     bool       `json:"firstTime"`
	Locked        bool       `json:"locked"`
	Entries       int        `json:"entries"`
	Rollups       int        `json:"rollups"`
	DatabaseBytes int64      `json:"databaseBytes"`
	Disk          *disk.Info `json:"disk,omitempty"`
	DiskLow       bool       `json:"diskLow"`
}

// Stats reports record counts and storage usage. It does not need the key.
func (j *Journal) Stats(ctx context.Context) (*Stats, error) {
	first, err := j.IsFirstTime(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := j.store.CountEntries(ctx)
	if err != nil {
		return nil, err
	}
	rollups, err := j.store.CountRollups(ctx)
	if err != nil {
		return nil, err
	}
	size, err := j.store.Size(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		FirstTime:     first,
		Locked:        j.IsLocked(),
		Entries:       entries,
		Rollups:       rollups,
		DatabaseBytes: size,
	}

	info, err := disk.Check(j.dir)
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to check disk space")
		return s, nil
	}
	s.Disk = info
	s.DiskLow = info.Low()
	return s, nil
}
