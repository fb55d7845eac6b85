package memory

import (
	"context"
	"log/slog"
	"time"
)

// Lifecycle periodically reviews scene-domain records. Records older than
// the retention window are promoted to the character domain when
// important enough, and deleted otherwise. This is the maintenance
// collaborator the hot path never waits on.
type Lifecycle struct {
	scene     *Store
	longTerm  *Store
	interval  time.Duration
	retention time.Duration
	threshold float64
	now       func() time.Time
}

// NewLifecycle creates a lifecycle runner over the scene store and the
// long-term (character) store.
func NewLifecycle(scene, longTerm *Store) *Lifecycle {
	return &Lifecycle{
		scene:     scene,
		longTerm:  longTerm,
		interval:  10 * time.Minute,
		retention: 48 * time.Hour,
		threshold: 0.7,
		now:       time.Now,
	}
}

// Run starts the background loop. It processes once on startup, then on
// every tick until the context is cancelled.
func (l *Lifecycle) Run(ctx context.Context) {
	l.process(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.process(ctx)
		case <-ctx.Done():
			slog.Info("memory lifecycle runner stopped")
			return
		}
	}
}

// RunOnce processes records once (for manual trigger).
func (l *Lifecycle) RunOnce(ctx context.Context) {
	l.process(ctx)
}

func (l *Lifecycle) process(ctx context.Context) {
	matches, err := l.scene.index.List(ctx, map[string]any{
		metaDomain: string(l.scene.domain),
	})
	if err != nil {
		slog.Error("lifecycle scan failed", "error", err)
		return
	}

	cutoff := l.now().Add(-l.retention)
	var expired []string
	promoted := 0

	for _, m := range matches {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle processing cancelled", "processed", promoted, "total", len(matches))
			return
		default:
		}

		rec := recordFromMatch(m.ID, m.Text, m.Metadata)
		if !rec.CreatedAt.Before(cutoff) {
			continue
		}

		if rec.Importance >= l.threshold {
			promotedRec := rec
			promotedRec.ID = "" // new identity in the long-term domain
			if err := l.longTerm.Add(ctx, &promotedRec); err != nil {
				slog.Error("lifecycle promotion failed", "id", rec.ID, "error", err)
				continue
			}
			promoted++
		}
		expired = append(expired, rec.ID)
	}

	if len(expired) > 0 {
		if err := l.scene.index.Delete(ctx, expired); err != nil {
			slog.Error("lifecycle cleanup failed", "error", err)
			return
		}
	}

	if promoted > 0 || len(expired) > 0 {
		slog.Info("memory lifecycle pass complete", "promoted", promoted, "expired", len(expired))
	}
}
