package presence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tsarna/go-structdiff"
	"go.uber.org/zap"

	"github.com/petrellis/vigil/pkg/vigil/wire"
)

// Renderer is the display collaborator. The reconciler never produces
// markup itself; it only notifies the renderer with the subject id and
// its current state. A nil state means the subject was removed.
type Renderer interface {
	Render(subjectID string, state *State)
}

// Errors returned by Apply. The caller is expected to log and drop the
// event; nothing the reconciler rejects ends the session.
var (
	ErrMissingSubject   = errors.New("presence payload missing subject id")
	ErrUntrackedSubject = errors.New("presence event for an untracked subject")
	ErrUnknownEvent     = errors.New("unrecognized event type")
)

// Reconciler merges incoming presence snapshots into the state table
// and notifies the renderer after each change. It owns the table; no
// other component writes to it.
type Reconciler struct {
	table    *Table
	renderer Renderer
	logger   *zap.Logger
}

// NewReconciler creates a reconciler over the given table and renderer.
func NewReconciler(table *Table, renderer Renderer, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		table:    table,
		renderer: renderer,
		logger:   logger,
	}
}

// Apply ingests one presence event. Initial snapshots and subsequent
// updates are handled identically: a full replace of the subject's
// state, never a field-level merge, because the upstream always sends
// complete snapshots. Only subjects already seeded into the table are
// accepted; the subscription set defines table membership, so a late
// event for a de-subscribed subject cannot re-enter it.
func (r *Reconciler) Apply(eventType string, data []byte) error {
	switch eventType {
	case wire.EventInitState, wire.EventPresenceUpdate:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("undecodable presence payload: %w", err)
	}
	if rec.User.ID == "" {
		return ErrMissingSubject
	}

	prev, tracked := r.table.Get(rec.User.ID)
	if !tracked {
		return fmt.Errorf("%w: %q", ErrUntrackedSubject, rec.User.ID)
	}

	state := &State{
		Record: &rec,
		Music:  extractMusic(&rec),
	}

	if prev.Record != nil {
		if delta, _ := structdiff.DiffStructs(*prev.Record, *state.Record); len(delta) > 0 {
			r.logger.Debug("Presence changed",
				zap.String("subject", rec.User.ID),
				zap.Any("delta", delta))
		}
	}

	r.table.Put(rec.User.ID, state)
	r.renderer.Render(rec.User.ID, state)
	return nil
}

// Seed marks every given subject as pending and notifies the renderer,
// so a placeholder shows before any data arrives.
func (r *Reconciler) Seed(ids []string) {
	for _, id := range ids {
		state := &State{Pending: true}
		r.table.Put(id, state)
		r.renderer.Render(id, state)
	}
}

// Retain drops every subject outside keep and tells the renderer to
// clear each one. Called when a new subscription set replaces the old.
func (r *Reconciler) Retain(keep []string) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	for _, id := range r.table.Prune(keepSet) {
		r.renderer.Render(id, nil)
	}
}

// extractMusic pulls the dedicated music activity out of the generic
// activity list when the record carries a music summary, so the two
// are never rendered together.
func extractMusic(rec *Record) *Activity {
	if rec.Spotify == nil {
		return nil
	}

	for i, act := range rec.Activities {
		if act.Name == MusicServiceName {
			extracted := act
			rec.Activities = append(rec.Activities[:i], rec.Activities[i+1:]...)
			return &extracted
		}
	}

	// Summary without a matching activity entry: surface it anyway.
	return rec.Spotify
}
