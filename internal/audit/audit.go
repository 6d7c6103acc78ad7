// Package audit appends immutable action records. Appends are
// fire-and-forget: a failed append is logged and never rolls back the
// operation that produced it.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradesim/internal/models"
	"tradesim/internal/repository"
)

const SystemActor = "system"

type Service struct {
	Repo    repository.Repository
	Logger  *zap.Logger
	Timeout time.Duration
}

// Append records an action asynchronously with its own short deadline, so a
// slow audit write never blocks settlement.
func (s *Service) Append(actor, action, targetID string, changeset map[string]any, reason string) {
	if s == nil || s.Repo == nil {
		return
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	var raw []byte
	if changeset != nil {
		raw, _ = json.Marshal(changeset)
	}
	item := &models.AuditLog{
		Actor:     actor,
		Action:    action,
		TargetID:  targetID,
		Changeset: datatypes.JSON(raw),
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Repo.InsertAuditLog(ctx, item); err != nil && s.Logger != nil {
			s.Logger.Warn("audit append failed",
				zap.String("action", action),
				zap.String("target_id", targetID),
				zap.Error(err),
			)
		}
	}()
}
