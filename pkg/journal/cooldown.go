package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Unlock attempt limits: 5 attempts -> 30s, 10 attempts -> 5min, 20 attempts -> 30min
const (
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute
)

// LockState tracks failed unlock attempts for cooldown enforcement.
type LockState struct {
	FailedAttempts int       `json:"failedAttempts"`
	LastAttempt    time.Time `json:"lastAttempt"`
	CooldownUntil  time.Time `json:"cooldownUntil"`
	LockoutCount   int       `json:"lockoutCount"`
}

func (j *Journal) lockStatePath() string {
	return filepath.Join(j.dir, LockStateFileName)
}

func (j *Journal) loadLockState() (*LockState, error) {
	data, err := os.ReadFile(j.lockStatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &LockState{}, nil
		}
		return nil, fmt.Errorf("journal: failed to read unlock state: %w", err)
	}

	var state LockState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted state file: start over.
		return &LockState{}, nil
	}
	return &state, nil
}

func (j *Journal) saveLockState(state *LockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("journal: failed to marshal unlock state: %w", err)
	}
	if err := os.WriteFile(j.lockStatePath(), data, 0600); err != nil {
		return fmt.Errorf("journal: failed to write unlock state: %w", err)
	}
	return nil
}

func (j *Journal) clearLockState() error {
	err := os.Remove(j.lockStatePath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("journal: failed to clear unlock state: %w", err)
	}
	return nil
}

// checkCooldown returns ErrCooldownActive and the remaining wait while a
// cooldown is in force.
func (j *Journal) checkCooldown() (time.Duration, error) {
	state, err := j.loadLockState()
	if err != nil {
		return 0, err
	}

	now := j.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), ErrCooldownActive
	}
	return 0, nil
}

// recordFailedAttempt counts a failed unlock and returns the cooldown it
// triggered, if any.
func (j *Journal) recordFailedAttempt() (time.Duration, error) {
	state, err := j.loadLockState()
	if err != nil {
		return 0, err
	}

	now := j.now()
	state.FailedAttempts++
	state.LastAttempt = now

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		cooldown = CooldownDuration3
	case state.FailedAttempts >= CooldownThreshold2:
		cooldown = CooldownDuration2
	case state.FailedAttempts >= CooldownThreshold1:
		cooldown = CooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
		state.LockoutCount++
	}

	return cooldown, j.saveLockState(state)
}

// RemainingCooldown returns the remaining cooldown time, or 0 if none.
func (j *Journal) RemainingCooldown() time.Duration {
	remaining, _ := j.checkCooldown()
	return remaining
}
