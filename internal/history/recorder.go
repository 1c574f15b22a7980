package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/log"
)

// Recorder writes lifecycle events from a hub into the store.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, logger: log.WithComponent("history")}
}

// Run consumes hub events until ctx ends, starting with the events the hub
// still retains so a load published before Run subscribed is recorded too.
// Write failures are logged and never stop the loop.
func (r *Recorder) Run(ctx context.Context, hub *events.Hub) {
	ch, cancel := hub.Subscribe()
	defer cancel()

	var last int64
	for _, ev := range hub.Since(0) {
		if err := r.Record(ctx, ev); err != nil {
			r.logger.Warn("failed to record history", "event", ev.Type, "error", err)
		}
		last = ev.ID
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= last {
				continue
			}
			if err := r.Record(ctx, ev); err != nil {
				r.logger.Warn("failed to record history", "event", ev.Type, "error", err)
			}
		}
	}
}

// Record stores one event. Events that are not history relevant are ignored.
func (r *Recorder) Record(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.ProjectLoaded, events.ProjectLoadFailed, events.ProjectReloaded, events.ReloadFailed:
		var lc events.Lifecycle
		if err := ev.Decode(&lc); err != nil {
			return err
		}
		kind := KindReload
		if ev.Type == events.ProjectLoaded || ev.Type == events.ProjectLoadFailed {
			kind = KindLoad
		}
		_, err := r.store.RecordReload(ctx, Reload{
			Project:     lc.Project,
			Kind:        kind,
			Fingerprint: lc.Fingerprint,
			Raster:      lc.Raster,
			Vector:      lc.Vector,
			Unchanged:   lc.Unchanged,
			Duration:    time.Duration(lc.DurationMS) * time.Millisecond,
			Error:       lc.Error,
			CreatedAt:   ev.At,
		})
		return err
	case events.ExportCompleted:
		var ex events.Export
		if err := ev.Decode(&ex); err != nil {
			return err
		}
		_, err := r.store.RecordExport(ctx, Export{
			Project:   ex.Project,
			Format:    ex.Format,
			Bytes:     int64(ex.Bytes),
			Duration:  time.Duration(ex.DurationMS) * time.Millisecond,
			Error:     ex.Error,
			CreatedAt: ev.At,
		})
		return err
	}
	return nil
}
