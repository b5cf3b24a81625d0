package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/internal/experiment"
	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/kafka"
)

// Recorder is the write side of Store.
type Recorder interface {
	SaveItem(ctx context.Context, e experiment.ItemEvent) error
	SaveRun(ctx context.Context, e experiment.RunEvent) error
}

type envelope struct {
	Type experiment.EventType `json:"type"`
}

// HandleEvent decodes experiment events and records them. Undecodable and
// unknown events are logged and skipped so they do not block the
// partition; storage errors are returned and leave the offset uncommitted.
func HandleEvent(rec Recorder) kafka.MessageHandler {
	logger := slog.Default().With("component", "experiment-sink")
	return func(ctx context.Context, key, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			logger.Error("failed to decode experiment event", "key", string(key), "error", err)
			return nil
		}
		switch env.Type {
		case experiment.EventItem:
			e, err := kafka.DecodeJSON[experiment.ItemEvent](value)
			if err != nil {
				logger.Error("failed to decode item event", "error", err)
				return nil
			}
			return rec.SaveItem(ctx, e)
		case experiment.EventRun:
			e, err := kafka.DecodeJSON[experiment.RunEvent](value)
			if err != nil {
				logger.Error("failed to decode run event", "error", err)
				return nil
			}
			if err := rec.SaveRun(ctx, e); err != nil {
				return fmt.Errorf("recording run event: %w", err)
			}
			return nil
		default:
			logger.Warn("unknown experiment event", "type", env.Type)
			return nil
		}
	}
}
