// Package policy holds the platform-wide outcome policy: the global mode,
// the randomized win probability, and per-user forced overrides.
package policy

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradesim/internal/apperr"
	"tradesim/internal/models"
	"tradesim/internal/repository"
)

const (
	DefaultMode           = models.ModeRandom
	DefaultWinProbability = 60
)

// Store is the mutex-guarded policy state. Every mutation is written through
// to the repository before it becomes visible to readers, so the in-memory
// view is a cache of the durable rows, never the other way around.
type Store struct {
	repo   repository.Repository
	logger *zap.Logger

	mu             sync.RWMutex
	mode           models.Mode
	winProbability int
	overrides      map[string]models.Override

	now func() time.Time
}

func NewStore(repo repository.Repository, logger *zap.Logger) *Store {
	return &Store{
		repo:           repo,
		logger:         logger,
		mode:           DefaultMode,
		winProbability: DefaultWinProbability,
		overrides:      map[string]models.Override{},
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Load rebuilds the in-memory state from the durable rows. Called once at
// startup; creates the singleton policy row if it does not exist yet.
func (s *Store) Load(ctx context.Context) error {
	if s == nil || s.repo == nil {
		return nil
	}
	state, err := s.repo.GetPolicyState(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.PolicyState{
			Mode:           DefaultMode,
			WinProbability: DefaultWinProbability,
			UpdatedAt:      s.now(),
		}
		if err := s.repo.SavePolicyState(ctx, state); err != nil {
			return err
		}
	}
	overrides, err := s.repo.ListOverrides(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = state.Mode
	s.winProbability = state.WinProbability
	s.overrides = make(map[string]models.Override, len(overrides))
	now := s.now()
	for _, o := range overrides {
		if o.Expired(now) {
			continue
		}
		s.overrides[o.UserID] = o
	}
	return nil
}

func (s *Store) SetGlobalMode(ctx context.Context, mode models.Mode) error {
	if !mode.Valid() {
		return apperr.Validation("invalid global mode")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.savePolicyLocked(ctx, mode, s.winProbability); err != nil {
		return err
	}
	s.mode = mode
	return nil
}

func (s *Store) SetWinProbability(ctx context.Context, pct int) error {
	if pct < 0 || pct > 100 {
		return apperr.Validation("win probability must be between 0 and 100")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.savePolicyLocked(ctx, s.mode, pct); err != nil {
		return err
	}
	s.winProbability = pct
	return nil
}

// SetUserOverride installs or replaces the forced outcome for a user.
// A nil outcome deletes any existing override.
func (s *Store) SetUserOverride(ctx context.Context, userID string, outcome *models.Outcome, expiresAt *time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.Validation("user id is required")
	}
	if outcome == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.repo != nil {
			if err := s.repo.DeleteOverride(ctx, userID); err != nil {
				return err
			}
		}
		delete(s.overrides, userID)
		return nil
	}
	if *outcome != models.OutcomeWin && *outcome != models.OutcomeLoss {
		return apperr.Validation("override outcome must be win or loss")
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return apperr.Validation("override expiry must be in the future")
	}
	item := models.Override{
		UserID:    userID,
		Outcome:   *outcome,
		ExpiresAt: expiresAt,
		UpdatedAt: s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		if err := s.repo.UpsertOverride(ctx, &item); err != nil {
			return err
		}
	}
	s.overrides[userID] = item
	return nil
}

// EffectiveOutcome returns the forced outcome for userID, if one exists and
// has not expired. An expired override is evicted as a side effect.
func (s *Store) EffectiveOutcome(ctx context.Context, userID string) (models.Outcome, bool) {
	s.mu.RLock()
	item, ok := s.overrides[userID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if item.Expired(s.now()) {
		s.evict(ctx, userID)
		return "", false
	}
	return item.Outcome, true
}

func (s *Store) evict(ctx context.Context, userID string) {
	s.mu.Lock()
	item, ok := s.overrides[userID]
	if ok && item.Expired(s.now()) {
		delete(s.overrides, userID)
	} else {
		ok = false
	}
	s.mu.Unlock()
	if !ok || s.repo == nil {
		return
	}
	if err := s.repo.DeleteOverride(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("evict expired override failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Mode returns the current global mode and win probability as one snapshot.
func (s *Store) Mode() (models.Mode, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, s.winProbability
}

// Snapshot describes the live policy state for the admin inspection surface.
type Snapshot struct {
	Mode           models.Mode       `json:"mode"`
	WinProbability int               `json:"win_probability"`
	Overrides      []models.Override `json:"overrides"`
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Mode: s.mode, WinProbability: s.winProbability}
	now := s.now()
	for _, o := range s.overrides {
		if o.Expired(now) {
			continue
		}
		out.Overrides = append(out.Overrides, o)
	}
	return out
}

// Reset returns the policy to its defaults and clears every override, as a
// single operation under the write lock.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.savePolicyLocked(ctx, DefaultMode, DefaultWinProbability); err != nil {
		return err
	}
	if s.repo != nil {
		for userID := range s.overrides {
			if err := s.repo.DeleteOverride(ctx, userID); err != nil {
				return err
			}
		}
	}
	s.mode = DefaultMode
	s.winProbability = DefaultWinProbability
	s.overrides = map[string]models.Override{}
	return nil
}

func (s *Store) savePolicyLocked(ctx context.Context, mode models.Mode, pct int) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.SavePolicyState(ctx, &models.PolicyState{
		Mode:           mode,
		WinProbability: pct,
		UpdatedAt:      s.now(),
	})
}
