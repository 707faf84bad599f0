// Package batch drives a list of work items to completion using a capped
// pool of credentials, with per-item fallback to a replacement credential.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage"
	"github.com/vietddude/harvester/internal/scraping/metrics"
	"github.com/vietddude/harvester/internal/scraping/pool"
)

// ItemFunc is one unit of work executed under a credential.
type ItemFunc func(ctx context.Context, item string, cred domain.Credential) (json.RawMessage, error)

// Request is one orchestrated run.
type Request struct {
	UserID   string
	Provider string
	Items    []string
	// BatchSize overrides the orchestrator default when > 0. The comments
	// pipeline uses size 1 so every post gets its own credential.
	BatchSize int
	Work      ItemFunc
}

// ItemOutcome is the settled result of one item.
type ItemOutcome struct {
	Item string
	Data json.RawMessage
	Err  error
}

// RunResult aggregates a whole run. A run never fails as a whole once
// credentials were acquired; partial failure is expressed in FailedCount.
type RunResult struct {
	Outcomes          []ItemOutcome
	FailedCount       int
	UsedCredentialIDs []string
	// NoCredentials marks a run that could not acquire any credential at
	// all. Every item is failed and no work was attempted.
	NoCredentials bool
}

// credentialSource is the slice of the pool manager the orchestrator needs.
type credentialSource interface {
	SelectCredentials(ctx context.Context, userID, provider string, required int, state *pool.RequestState) ([]domain.Credential, error)
	SelectReplacement(ctx context.Context, userID, provider string, state *pool.RequestState) (domain.Credential, error)
}

// Orchestrator partitions items into fixed-size batches, assigns one
// credential per batch round-robin, and runs items concurrently.
type Orchestrator struct {
	pool      credentialSource
	creds     storage.CredentialRepository
	batchSize int
	now       func() time.Time
	log       *slog.Logger
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(
	source *pool.Manager,
	creds storage.CredentialRepository,
	cfg config.BatchConfig,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		pool:      source,
		creds:     creds,
		batchSize: cfg.Size,
		now:       time.Now,
		log:       log,
	}
}

// Run executes all items. It returns an error only when listing credentials
// fails outright; exhaustion and zero-configured pools come back as a
// NoCredentials result so callers can always report something to the user.
func (o *Orchestrator) Run(ctx context.Context, req Request) (RunResult, error) {
	size := req.BatchSize
	if size <= 0 {
		size = o.batchSize
	}
	batches := partition(req.Items, size)

	required := len(batches)
	if required < 1 {
		required = 1
	}

	state := pool.NewRequestState()
	selection, err := o.pool.SelectCredentials(ctx, req.UserID, req.Provider, required, state)
	if err != nil {
		if errors.Is(err, domain.ErrNoCredentials) {
			return o.noCredentialsResult(req), nil
		}
		return RunResult{}, err
	}
	if len(selection) == 0 {
		return o.noCredentialsResult(req), nil
	}

	o.log.Info("starting batched run",
		"user", req.UserID, "items", len(req.Items),
		"batches", len(batches), "credentials", len(selection))

	outcomes := make([][]ItemOutcome, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for bi, items := range batches {
		assigned := selection[bi%len(selection)]
		g.Go(func() error {
			outcomes[bi] = o.runBatch(gctx, req, items, assigned, state)
			return nil
		})
	}
	// Batch workers record their own outcomes and never return errors, so
	// one batch's trouble cannot cancel its siblings.
	_ = g.Wait()

	result := RunResult{UsedCredentialIDs: assignedIDs(selection, len(batches))}
	for _, b := range outcomes {
		for _, oc := range b {
			result.Outcomes = append(result.Outcomes, oc)
			if oc.Err != nil {
				result.FailedCount++
			}
		}
	}

	// A batch running to completion is evidence its credential still works,
	// independent of individual item outcomes.
	o.refreshCredentials(ctx, result.UsedCredentialIDs)

	return result, nil
}

func (o *Orchestrator) noCredentialsResult(req Request) RunResult {
	result := RunResult{NoCredentials: true, FailedCount: len(req.Items)}
	for _, item := range req.Items {
		result.Outcomes = append(result.Outcomes, ItemOutcome{
			Item: item,
			Err:  domain.ErrNoCredentials,
		})
		metrics.ItemsTotal.WithLabelValues("failed").Inc()
	}
	return result
}

// runBatch runs every item of one batch concurrently under one credential.
func (o *Orchestrator) runBatch(
	ctx context.Context,
	req Request,
	items []string,
	cred domain.Credential,
	state *pool.RequestState,
) []ItemOutcome {
	out := make([]ItemOutcome, len(items))

	// If the batch cannot even start, every item in it is failed without
	// per-item detail.
	if err := ctx.Err(); err != nil {
		for i, item := range items {
			out[i] = ItemOutcome{Item: item, Err: err}
			metrics.ItemsTotal.WithLabelValues("failed").Inc()
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			out[i] = o.runItem(gctx, req, item, cred, state)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// runItem attempts one item and, on a credential-related failure, retries
// exactly once with a replacement. The single retry is structural — there
// is no loop to run away with.
func (o *Orchestrator) runItem(
	ctx context.Context,
	req Request,
	item string,
	cred domain.Credential,
	state *pool.RequestState,
) ItemOutcome {
	data, err := req.Work(ctx, item, cred)
	if err == nil {
		metrics.ItemsTotal.WithLabelValues("ok").Inc()
		return ItemOutcome{Item: item, Data: data}
	}

	cf, ok := domain.AsCredentialFailure(err)
	if !ok || !cf.Kind.CredentialRelated() {
		metrics.ItemsTotal.WithLabelValues("failed").Inc()
		return ItemOutcome{Item: item, Err: err}
	}

	// Persist the failure before looking for a replacement so the broken
	// credential cannot be handed out again, then exclude it for the rest
	// of this request regardless of what the store says.
	o.markFailure(ctx, cred, cf.Kind)
	state.MarkFailed(cred.ID)

	repl, rerr := o.pool.SelectReplacement(ctx, req.UserID, req.Provider, state)
	if rerr != nil {
		// The original failure is what the caller should see, not the
		// internal exhaustion signal.
		o.log.Warn("no replacement credential available",
			"item", item, "credential", cred.ID, "error", rerr)
		metrics.ItemsTotal.WithLabelValues("failed").Inc()
		return ItemOutcome{Item: item, Err: err}
	}

	o.log.Info("retrying item with replacement credential",
		"item", item, "failed_credential", cred.ID, "replacement", repl.ID)

	data, retryErr := req.Work(ctx, item, repl)
	if retryErr != nil {
		// The replacement failing too does not change what broke the
		// item: the original error stays the terminal one.
		o.log.Warn("replacement credential also failed",
			"item", item, "replacement", repl.ID, "error", retryErr)
		metrics.ItemsTotal.WithLabelValues("failed").Inc()
		return ItemOutcome{Item: item, Err: err}
	}
	metrics.ItemsTotal.WithLabelValues("ok").Inc()
	return ItemOutcome{Item: item, Data: data}
}

// markFailure persists a credential's failure status. Best-effort: a store
// write failing must not abort otherwise-successful work.
func (o *Orchestrator) markFailure(ctx context.Context, cred domain.Credential, kind domain.FailureKind) {
	status := kind.Status()
	now := o.now()
	err := o.creds.Update(ctx, cred.ID, storage.CredentialUpdate{
		Status:     &status,
		LastFailed: &now,
	})
	if err != nil {
		o.log.Warn("failed to persist credential failure",
			"credential", cred.ID, "status", status, "error", err)
	}
}

// refreshCredentials marks every credential that was assigned to a batch as
// active with a fresh last-used stamp and a zeroed failure counter.
func (o *Orchestrator) refreshCredentials(ctx context.Context, ids []string) {
	status := domain.CredentialActive
	now := o.now()
	zero := 0
	for _, id := range ids {
		err := o.creds.Update(ctx, id, storage.CredentialUpdate{
			Status:       &status,
			LastUsed:     &now,
			FailureCount: &zero,
		})
		if err != nil {
			o.log.Warn("failed to refresh credential", "credential", id, "error", err)
		}
	}
}

// assignedIDs returns the distinct credential IDs that round-robin
// assignment actually hands to batches, in selection order.
func assignedIDs(selection []domain.Credential, batchCount int) []string {
	n := len(selection)
	if batchCount < n {
		n = batchCount
	}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, selection[i].ID)
	}
	return ids
}

func partition(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	var batches [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
