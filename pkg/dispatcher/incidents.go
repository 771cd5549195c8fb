package dispatcher

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"mercator-hq/tokenmeter/pkg/telemetry/logging"
)

// Incident is an incident being worked on.
type Incident struct {
	ID        string         `json:"incident_id"`
	StartedAt time.Time      `json:"start_time"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Incidents is a registry of active incidents, safe for concurrent use.
//
// Registering an id that is already active overwrites its entry, and the
// first release for that id removes it.
type Incidents struct {
	mu     sync.RWMutex
	active map[string]*Incident
	now    func() time.Time
	logger *slog.Logger
}

// NewIncidents creates an empty registry.
func NewIncidents() *Incidents {
	return &Incidents{
		active: make(map[string]*Incident),
		now:    time.Now,
		logger: slog.Default().With("component", "dispatcher.incidents"),
	}
}

// Begin registers id as active and returns a function that removes it.
// The returned function is safe to call more than once.
func (r *Incidents) Begin(id string, meta map[string]any) func() {
	inc := &Incident{ID: id, StartedAt: r.now().UTC(), Metadata: maps.Clone(meta)}

	r.mu.Lock()
	r.active[id] = inc
	r.mu.Unlock()

	r.logger.Info("incident started", "incident_id", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.active, id)
			r.mu.Unlock()
			r.logger.Info("incident ended",
				"incident_id", id,
				"duration_seconds", r.now().Sub(inc.StartedAt).Seconds(),
			)
		})
	}
}

// IncidentContext runs fn with id registered as active and carried by the
// context passed to fn. The incident is removed when fn returns, fails or
// panics; a panic is propagated after removal.
func (r *Incidents) IncidentContext(ctx context.Context, id string, meta map[string]any, fn func(ctx context.Context) error) error {
	release := r.Begin(id, meta)
	defer release()
	return fn(logging.WithIncidentID(ctx, id))
}

// Active returns a snapshot of the active incidents ordered by start time.
func (r *Incidents) Active() []Incident {
	r.mu.RLock()
	out := make([]Incident, 0, len(r.active))
	for _, inc := range r.active {
		out = append(out, Incident{ID: inc.ID, StartedAt: inc.StartedAt, Metadata: maps.Clone(inc.Metadata)})
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Incident) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// IsActive reports whether id is registered.
func (r *Incidents) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[id]
	return ok
}
