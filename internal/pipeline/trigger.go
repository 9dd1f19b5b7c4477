package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/logger"
)

// SnapshotsLoaded is published by the extraction layer after it appends new
// raw snapshots. An empty Entities list means every entity.
type SnapshotsLoaded struct {
	TenantID string    `json:"tenant_id"`
	Entities []string  `json:"entities"`
	LoadedAt time.Time `json:"loaded_at"`
}

// TriggerHandler runs the transform for every snapshots-loaded message.
// A run skipped because another holds the lock, or a message that cannot
// be decoded, is acknowledged; other run failures leave it uncommitted.
func TriggerHandler(r *Runner, runTimeout time.Duration) kafka.MessageHandler {
	log := logger.WithComponent("trigger")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[SnapshotsLoaded](value)
		if err != nil {
			log.Warn("ignoring malformed trigger", "key", string(key), "error", err)
			return nil
		}

		var entities []model.EntityType
		for _, name := range event.Entities {
			e, ok := model.ParseEntity(name)
			if !ok {
				log.Warn("ignoring unknown entity in trigger", "entity", name)
				continue
			}
			entities = append(entities, e)
		}
		if len(event.Entities) > 0 && len(entities) == 0 {
			return nil
		}

		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}
		log.Info("trigger received", "tenant_id", event.TenantID, "entities", entities, "loaded_at", event.LoadedAt)
		_, err = r.Run(ctx, entities...)
		if errors.Is(err, apperrors.ErrLockHeld) {
			return nil
		}
		return err
	}
}
