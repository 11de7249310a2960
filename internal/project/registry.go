package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"paperqa/internal/contextutil"
)

// ErrProjectNotFound is returned when no snapshot is published for a project.
var ErrProjectNotFound = errors.New("project snapshot not found")

// PublishHook is called after a snapshot has been published.
type PublishHook func(ctx context.Context, snap *Snapshot)

// Registry holds the current snapshot of every project.
//
// Reads are lock free: the project map is copy-on-write behind an atomic pointer,
// so a request that obtained a snapshot keeps using it even if a rebuild publishes
// a newer one. Rebuilds are serialized.
type Registry struct {
	builder   *Builder
	snapshots atomic.Pointer[map[string]*Snapshot]
	writeMu   sync.Mutex
	reloadMu  sync.Mutex
	onPublish []PublishHook
}

// NewRegistry creates an empty registry. builder may be nil when snapshots are
// only published directly.
func NewRegistry(builder *Builder, hooks ...PublishHook) *Registry {
	r := &Registry{
		builder:   builder,
		onPublish: hooks,
	}
	empty := make(map[string]*Snapshot)
	r.snapshots.Store(&empty)
	return r
}

// Get returns the current snapshot for projectID.
func (r *Registry) Get(projectID string) (*Snapshot, error) {
	snap, ok := (*r.snapshots.Load())[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return snap, nil
}

// List returns the current snapshots sorted by project id.
func (r *Registry) List() []*Snapshot {
	current := *r.snapshots.Load()
	out := make([]*Snapshot, 0, len(current))
	for _, snap := range current {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// Len returns the number of published snapshots.
func (r *Registry) Len() int {
	return len(*r.snapshots.Load())
}

// Publish atomically replaces the snapshot for snap.ProjectID.
func (r *Registry) Publish(ctx context.Context, snap *Snapshot) {
	r.writeMu.Lock()
	current := *r.snapshots.Load()
	next := make(map[string]*Snapshot, len(current)+1)
	for id, s := range current {
		next[id] = s
	}
	next[snap.ProjectID] = snap
	r.snapshots.Store(&next)
	r.writeMu.Unlock()

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "project snapshot published",
		"project_id", snap.ProjectID,
		"built_at", snap.BuiltAt,
	)
	for _, hook := range r.onPublish {
		hook(ctx, snap)
	}
}

// Remove unpublishes projectID. In-flight requests holding its snapshot are unaffected.
func (r *Registry) Remove(ctx context.Context, projectID string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.snapshots.Load()
	if _, ok := current[projectID]; !ok {
		return
	}
	next := make(map[string]*Snapshot, len(current))
	for id, s := range current {
		if id != projectID {
			next[id] = s
		}
	}
	r.snapshots.Store(&next)
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "project snapshot removed", "project_id", projectID)
}

// Reload builds a fresh snapshot for projectID and publishes it. On failure the
// previous snapshot, if any, stays published.
func (r *Registry) Reload(ctx context.Context, projectID string) (*Snapshot, error) {
	if r.builder == nil {
		return nil, errors.New("registry has no builder")
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	snap, err := r.builder.Build(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to build project %s: %w", projectID, err)
	}
	r.Publish(ctx, snap)
	return snap, nil
}

// LoadAll builds and publishes every project the builder's source lists.
// Individual failures are logged and joined into the returned error; successfully
// built projects are published regardless.
func (r *Registry) LoadAll(ctx context.Context) error {
	if r.builder == nil {
		return errors.New("registry has no builder")
	}
	logger := contextutil.LoggerFromContext(ctx)

	ids, err := r.builder.source.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.Reload(ctx, id); err != nil {
			logger.ErrorContext(ctx, "failed to load project", "project_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	logger.InfoContext(ctx, "projects loaded", "listed", len(ids), "published", r.Len(), "failed", len(errs))
	return errors.Join(errs...)
}
