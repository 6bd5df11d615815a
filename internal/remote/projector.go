package remote

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/untoldecay/idse/internal/schemamap"
	"github.com/untoldecay/idse/internal/storage"
	"github.com/untoldecay/idse/internal/types"
)

// Options tunes batch behavior. Zero values fall back to defaults.
type Options struct {
	// Anchor is the opaque remote container (database/view) rows live under.
	Anchor string
	// Concurrency bounds parallel remote calls within a batch.
	Concurrency int
	// MaxAttempts bounds retries of a single remote call on rate limiting.
	MaxAttempts int
	// BaseBackoff and MaxBackoff shape the capped exponential backoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 8 * time.Second
	}
	return o
}

// ItemError is a per-artifact batch failure.
type ItemError struct {
	IDSEID string    `json:"idse_id"`
	Kind   ErrorKind `json:"kind"`
	Err    string    `json:"error"`
}

// BatchResult summarizes a failure-isolated push or pull batch.
type BatchResult struct {
	Succeeded []string    `json:"succeeded"`
	Skipped   []string    `json:"skipped"`
	Failed    []ItemError `json:"failed"`
}

// OK reports whether the batch completed without per-artifact failures.
func (r *BatchResult) OK() bool {
	return len(r.Failed) == 0
}

// Summary renders the one-line batch outcome shown to callers.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("{succeeded: %d, skipped: %d, failed: %d}",
		len(r.Succeeded), len(r.Skipped), len(r.Failed))
}

// Projector pushes and pulls a session's artifacts against a remote backend.
// Batches are failure-isolated: a per-artifact error is recorded and the
// batch continues, except auth errors, which abort the batch.
type Projector struct {
	store   storage.Storage
	backend Backend
	schema  *schemamap.Map
	opts    Options
}

// NewProjector builds a Projector over a store, backend, and schema map.
func NewProjector(store storage.Storage, backend Backend, schema *schemamap.Map, opts Options) *Projector {
	if schema == nil {
		schema = schemamap.Default()
	}
	return &Projector{store: store, backend: backend, schema: schema, opts: opts.withDefaults()}
}

type batchState struct {
	mu     sync.Mutex
	result BatchResult
	cancel context.CancelFunc
}

func (b *batchState) succeed(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result.Succeeded = append(b.result.Succeeded, id)
}

func (b *batchState) skip(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result.Skipped = append(b.result.Skipped, id)
}

func (b *batchState) fail(id string, err error) {
	kind := KindOf(err)
	b.mu.Lock()
	b.result.Failed = append(b.result.Failed, ItemError{IDSEID: id, Kind: kind, Err: err.Error()})
	b.mu.Unlock()
	// Auth failures invalidate the whole batch; stop issuing new calls.
	if kind == KindAuth {
		b.cancel()
	}
}

func (b *batchState) authFailed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.result.Failed {
		if f.Kind == KindAuth {
			return true
		}
	}
	return false
}

// runBatch applies fn to every artifact under the bounded concurrency
// limit. Cancellation stops new work but does not undo completed items.
func (p *Projector) runBatch(ctx context.Context, artifacts []*types.Artifact, b *batchState, fn func(ctx context.Context, a *types.Artifact) error) {
	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup
	for _, a := range artifacts {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(a *types.Artifact) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, a); err != nil {
				b.fail(a.IDSEID, err)
			}
		}(a)
	}
	wg.Wait()
}

// Push projects every artifact of a session to the remote. Unchanged
// artifacts (cached remote id, matching push hash) are skipped without any
// remote call.
func (p *Projector) Push(ctx context.Context, project, sessionID string) (*BatchResult, error) {
	sess, err := p.store.GetSession(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}
	artifacts, err := p.store.ListSessionArtifacts(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}
	tags, err := p.store.GetSessionTags(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}
	state, err := p.store.GetSessionState(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b := &batchState{cancel: cancel}

	p.runBatch(ctx, artifacts, b, func(ctx context.Context, a *types.Artifact) error {
		skipped, err := p.pushArtifact(ctx, project, sess, a, tags, state)
		if err != nil {
			return err
		}
		if skipped {
			b.skip(a.IDSEID)
		} else {
			b.succeed(a.IDSEID)
		}
		return nil
	})

	if b.authFailed() {
		return &b.result, fmt.Errorf("push aborted: remote authentication failed")
	}
	return &b.result, nil
}

func (p *Projector) pushArtifact(ctx context.Context, project string, sess *types.Session, a *types.Artifact, tags map[string]string, state types.SessionState) (skipped bool, err error) {
	backend := p.backend.Name()

	meta, err := p.store.GetSyncMetadata(ctx, a.ID, backend)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	if meta.Skippable(a.ContentHash) {
		return true, nil
	}

	remoteID := ""
	if meta != nil {
		remoteID = meta.RemoteID
	}
	if remoteID == "" {
		// First sync for this artifact: one anchor query to adopt a row
		// created out of band.
		ids, qerr := p.queryWithRetry(ctx, map[string]string{
			"Session": sess.SessionID,
			"Stage":   string(a.Stage),
		})
		if qerr != nil {
			return false, qerr
		}
		if len(ids) > 0 {
			remoteID = ids[0]
		}
	}

	src, err := p.buildSource(ctx, project, sess, a, tags, state)
	if err != nil {
		return false, err
	}

	if remoteID == "" {
		remoteID, err = p.createWithRetry(ctx, src, a.Content)
		if err != nil {
			return false, err
		}
	} else {
		err = p.updateWithRetry(ctx, remoteID, src, a.Content)
		if KindOf(err) == KindNotFound {
			// The cached row was deleted out of band: re-create; the final
			// write below replaces the stale id.
			remoteID, err = p.createWithRetry(ctx, src, a.Content)
		}
		if err != nil {
			return false, err
		}
	}

	// All spine bookkeeping for the artifact (adopted or created remote id,
	// push hash, push time) lands in one transactional write.
	now := time.Now().UTC()
	hash := a.ContentHash
	return false, p.store.SaveSyncMetadata(ctx, a.ID, backend, types.SyncUpdate{
		RemoteID: &remoteID,
		PushHash: &hash,
		PushAt:   &now,
	})
}

// buildSource assembles the schema map input for one artifact. Status
// prefers the per-stage state; relations carry the remote ids of upstream
// dependencies that have already synced.
func (p *Projector) buildSource(ctx context.Context, project string, sess *types.Session, a *types.Artifact, tags map[string]string, state types.SessionState) (schemamap.Source, error) {
	status := string(sess.Status)
	if slot := state[a.Stage]; slot != nil && slot.Status != "" {
		status = slot.Status
	}

	var upstream []string
	deps, err := p.store.GetDependencyRecords(ctx, a.ID)
	if err != nil {
		return schemamap.Source{}, err
	}
	for _, dep := range deps {
		depMeta, err := p.store.GetSyncMetadata(ctx, dep.DependsOnID, p.backend.Name())
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return schemamap.Source{}, err
		}
		if depMeta.RemoteID != "" {
			upstream = append(upstream, depMeta.RemoteID)
		}
	}

	return schemamap.Source{
		Title:             fmt.Sprintf("%s / %s / %s", project, sess.SessionID, a.Stage),
		Session:           sess.SessionID,
		Stage:             a.Stage,
		Status:            status,
		Tags:              tags,
		UpstreamRemoteIDs: upstream,
	}, nil
}

// Pull refreshes a session's artifacts from the remote. Rows gone from the
// remote are recorded as NotFound failures and the batch continues.
func (p *Projector) Pull(ctx context.Context, project, sessionID string) (*BatchResult, error) {
	if _, err := p.store.GetSession(ctx, project, sessionID); err != nil {
		return nil, err
	}
	artifacts, err := p.store.ListSessionArtifacts(ctx, project, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b := &batchState{cancel: cancel}

	p.runBatch(ctx, artifacts, b, func(ctx context.Context, a *types.Artifact) error {
		if err := p.pullArtifact(ctx, project, sessionID, a); err != nil {
			return err
		}
		b.succeed(a.IDSEID)
		return nil
	})

	if b.authFailed() {
		return &b.result, fmt.Errorf("pull aborted: remote authentication failed")
	}
	return &b.result, nil
}

func (p *Projector) pullArtifact(ctx context.Context, project, sessionID string, a *types.Artifact) error {
	backend := p.backend.Name()

	meta, err := p.store.GetSyncMetadata(ctx, a.ID, backend)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	remoteID := ""
	if meta != nil {
		remoteID = meta.RemoteID
	}
	if remoteID == "" {
		ids, qerr := p.queryWithRetry(ctx, map[string]string{
			"Session": sessionID,
			"Stage":   string(a.Stage),
		})
		if qerr != nil {
			return qerr
		}
		if len(ids) == 0 {
			return &RemoteError{Kind: KindNotFound, Op: "pull", Err: fmt.Errorf("artifact %s has no remote row", a.IDSEID)}
		}
		remoteID = ids[0]
		if err := p.store.SaveSyncMetadata(ctx, a.ID, backend, types.SyncUpdate{RemoteID: &remoteID}); err != nil {
			return err
		}
	}

	row, err := p.fetchWithRetry(ctx, remoteID)
	if err != nil {
		return err
	}

	upstreamIDs, err := p.translateUpstream(ctx, row)
	if err != nil {
		return err
	}

	return p.store.RunInTransaction(ctx, func(ctx context.Context, tx storage.Transaction) error {
		updated, err := tx.SaveArtifact(ctx, project, sessionID, a.Stage, row.Body, "pull")
		if err != nil {
			return err
		}
		if upstreamIDs != nil {
			if err := tx.ReplaceUpstreamDependencies(ctx, updated.ID, upstreamIDs, "pull"); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		hash := updated.ContentHash
		return tx.SaveSyncMetadata(ctx, updated.ID, backend, types.SyncUpdate{
			PullHash: &hash,
			PullAt:   &now,
		})
	})
}

// translateUpstream maps the remote upstream relation to local artifact ids
// via the remote_id reverse lookup. A nil return means the remote carried no
// relation property and the local edge set is left alone; an empty relation
// clears it.
func (p *Projector) translateUpstream(ctx context.Context, row *Row) ([]int64, error) {
	raw, ok := row.Properties["Upstream"]
	if !ok {
		return nil, nil
	}

	var remoteIDs []string
	switch v := raw.(type) {
	case []string:
		remoteIDs = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				remoteIDs = append(remoteIDs, s)
			}
		}
	default:
		return nil, &RemoteError{Kind: KindSchemaMismatch, Op: "pull",
			Err: fmt.Errorf("upstream relation has unexpected shape %T", raw)}
	}

	ids := make([]int64, 0, len(remoteIDs))
	for _, rid := range remoteIDs {
		local, err := p.store.FindArtifactByRemoteID(ctx, p.backend.Name(), rid)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, local.ID)
	}
	return ids, nil
}

// Retry wrappers: rate-limited calls back off exponentially with jitter up
// to the attempt budget; every other error surfaces immediately.

func (p *Projector) queryWithRetry(ctx context.Context, filter map[string]string) ([]string, error) {
	var ids []string
	err := p.withRetry(ctx, func() error {
		var err error
		ids, err = p.backend.Query(ctx, p.opts.Anchor, filter)
		return err
	})
	return ids, err
}

func (p *Projector) createWithRetry(ctx context.Context, src schemamap.Source, body string) (string, error) {
	var id string
	err := p.withRetry(ctx, func() error {
		var err error
		id, err = p.backend.Create(ctx, p.opts.Anchor, p.schema.BuildCreateProperties(src), body)
		return err
	})
	return id, err
}

func (p *Projector) updateWithRetry(ctx context.Context, remoteID string, src schemamap.Source, body string) error {
	return p.withRetry(ctx, func() error {
		return p.backend.Update(ctx, remoteID, p.schema.BuildUpdateProperties(src), body)
	})
}

func (p *Projector) fetchWithRetry(ctx context.Context, remoteID string) (*Row, error) {
	var row *Row
	err := p.withRetry(ctx, func() error {
		var err error
		row, err = p.backend.Fetch(ctx, remoteID)
		return err
	})
	return row, err
}

func (p *Projector) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.opts.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || KindOf(lastErr) != KindRateLimited {
			return lastErr
		}
		delay := p.opts.BaseBackoff << attempt
		if delay > p.opts.MaxBackoff {
			delay = p.opts.MaxBackoff
		}
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		select {
		case <-ctx.Done():
			return &RemoteError{Kind: KindTimeout, Op: "retry", Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return lastErr
}
