package batch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/harvester/internal/core/domain"
	"github.com/vietddude/harvester/internal/infra/storage/memory"
	"github.com/vietddude/harvester/internal/scraping/pool"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mockSource hands out a fixed selection and replacement.
type mockSource struct {
	mu               sync.Mutex
	selection        []domain.Credential
	selectErr        error
	replacement      *domain.Credential
	replacementErr   error
	replacementCalls int
	onReplacement    func() // runs while the replacement is being resolved
}

func (m *mockSource) SelectCredentials(
	_ context.Context,
	_, _ string,
	required int,
	_ *pool.RequestState,
) ([]domain.Credential, error) {
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	if len(m.selection) > required {
		return m.selection[:required], nil
	}
	return m.selection, nil
}

func (m *mockSource) SelectReplacement(
	_ context.Context,
	_, _ string,
	_ *pool.RequestState,
) (domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replacementCalls++
	if m.onReplacement != nil {
		m.onReplacement()
	}
	if m.replacementErr != nil {
		return domain.Credential{}, m.replacementErr
	}
	return *m.replacement, nil
}

func testCred(id string) domain.Credential {
	return domain.Credential{
		ID:       id,
		UserID:   "u1",
		Provider: "apify",
		Secret:   "tok-" + id,
		Status:   domain.CredentialActive,
	}
}

func newTestOrchestrator(source credentialSource, repo *memory.CredentialRepo, batchSize int) *Orchestrator {
	return &Orchestrator{
		pool:      source,
		creds:     repo,
		batchSize: batchSize,
		now:       func() time.Time { return testNow },
		log:       slog.Default(),
	}
}

// recordingWork counts work invocations per item and tracks which
// credential ran each attempt.
type recordingWork struct {
	mu    sync.Mutex
	calls map[string][]string // item -> credential IDs in attempt order
	fail  map[string]error    // credential ID -> error to return
}

func newRecordingWork() *recordingWork {
	return &recordingWork{calls: make(map[string][]string), fail: make(map[string]error)}
}

func (w *recordingWork) fn(_ context.Context, item string, cred domain.Credential) (json.RawMessage, error) {
	w.mu.Lock()
	w.calls[item] = append(w.calls[item], cred.ID)
	err := w.fail[cred.ID]
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(`"ok"`), nil
}

func (w *recordingWork) attempts(item string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[item]
}

func TestRunSingleBatch(t *testing.T) {
	c1 := testCred("c1")
	repo := memory.NewCredentialRepo(c1)
	source := &mockSource{selection: []domain.Credential{c1}}
	work := newRecordingWork()
	o := newTestOrchestrator(source, repo, 50)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1", "i2", "i3"},
		Work:     work.fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FailedCount != 0 {
		t.Errorf("failed count = %d, want 0", result.FailedCount)
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(result.Outcomes))
	}
	if len(result.UsedCredentialIDs) != 1 || result.UsedCredentialIDs[0] != "c1" {
		t.Errorf("used credentials = %v, want [c1]", result.UsedCredentialIDs)
	}
	for _, item := range []string{"i1", "i2", "i3"} {
		if got := work.attempts(item); len(got) != 1 || got[0] != "c1" {
			t.Errorf("item %s attempts = %v, want one attempt with c1", item, got)
		}
	}
}

func TestRunRoundRobinAssignment(t *testing.T) {
	c1, c2 := testCred("c1"), testCred("c2")
	repo := memory.NewCredentialRepo(c1, c2)
	source := &mockSource{selection: []domain.Credential{c1, c2}}
	work := newRecordingWork()
	o := newTestOrchestrator(source, repo, 1)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1", "i2", "i3", "i4"},
		Work:     work.fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCred := map[string]string{"i1": "c1", "i2": "c2", "i3": "c1", "i4": "c2"}
	for item, want := range wantCred {
		if got := work.attempts(item); len(got) != 1 || got[0] != want {
			t.Errorf("item %s ran under %v, want %s", item, got, want)
		}
	}
	if len(result.UsedCredentialIDs) != 2 {
		t.Errorf("used credentials = %v, want both", result.UsedCredentialIDs)
	}
}

func TestRunNoCredentials(t *testing.T) {
	repo := memory.NewCredentialRepo()
	source := &mockSource{selectErr: domain.ErrNoCredentials}
	o := newTestOrchestrator(source, repo, 50)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1", "i2"},
		Work:     newRecordingWork().fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !result.NoCredentials {
		t.Error("NoCredentials = false, want true")
	}
	if result.FailedCount != 2 {
		t.Errorf("failed count = %d, want 2", result.FailedCount)
	}
	for _, oc := range result.Outcomes {
		if !errors.Is(oc.Err, domain.ErrNoCredentials) {
			t.Errorf("outcome %s err = %v, want ErrNoCredentials", oc.Item, oc.Err)
		}
	}
}

func TestRunEmptySelection(t *testing.T) {
	repo := memory.NewCredentialRepo()
	source := &mockSource{selection: nil}
	o := newTestOrchestrator(source, repo, 50)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1"},
		Work:     newRecordingWork().fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.NoCredentials {
		t.Error("an exhausted pool must surface as NoCredentials, not as a silent empty run")
	}
}

func TestRunItemRetriesWithReplacement(t *testing.T) {
	bad, good := testCred("bad"), testCred("good")
	repo := memory.NewCredentialRepo(bad, good)
	source := &mockSource{
		selection:   []domain.Credential{bad},
		replacement: &good,
	}
	work := newRecordingWork()
	work.fail["bad"] = &domain.CredentialFailure{Kind: domain.FailureRateLimited, Err: errors.New("429")}

	// The failure must already be persisted by the time a replacement
	// is requested; snapshot the record at that moment.
	var atReplacement domain.Credential
	source.onReplacement = func() {
		atReplacement, _ = repo.Get("bad")
	}
	o := newTestOrchestrator(source, repo, 50)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1"},
		Work:     work.fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FailedCount != 0 {
		t.Errorf("failed count = %d, want 0 after successful retry", result.FailedCount)
	}
	if got := work.attempts("i1"); len(got) != 2 || got[0] != "bad" || got[1] != "good" {
		t.Errorf("attempts = %v, want [bad good]", got)
	}

	if atReplacement.Status != domain.CredentialRateLimited {
		t.Errorf("status at replacement time = %s, want rate_limited persisted", atReplacement.Status)
	}
	if atReplacement.LastFailed == nil || !atReplacement.LastFailed.Equal(testNow) {
		t.Errorf("last failed at replacement time = %v, want %v", atReplacement.LastFailed, testNow)
	}

	// After the run, the refresh pass resets assigned credentials.
	stored, _ := repo.Get("bad")
	if stored.Status != domain.CredentialActive {
		t.Errorf("credential status after run = %s, want active after refresh", stored.Status)
	}
}

func TestRunItemSingleRetryOnly(t *testing.T) {
	bad, worse := testCred("bad"), testCred("worse")
	repo := memory.NewCredentialRepo(bad, worse)
	source := &mockSource{
		selection:   []domain.Credential{bad},
		replacement: &worse,
	}
	work := newRecordingWork()
	work.fail["bad"] = &domain.CredentialFailure{Kind: domain.FailureUnauthorized, Err: errors.New("401")}
	retryErr := &domain.CredentialFailure{Kind: domain.FailureRateLimited, Err: errors.New("429")}
	work.fail["worse"] = retryErr
	o := newTestOrchestrator(source, repo, 50)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1"},
		Work:     work.fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := work.attempts("i1"); len(got) != 2 {
		t.Fatalf("attempts = %v, want exactly 2 (no retry of the retry)", got)
	}
	if result.FailedCount != 1 {
		t.Errorf("failed count = %d, want 1", result.FailedCount)
	}
	// The first attempt's error is what surfaces, not the replacement's.
	if cf, ok := domain.AsCredentialFailure(result.Outcomes[0].Err); !ok || cf.Kind != domain.FailureUnauthorized {
		t.Errorf("outcome err = %v, want the original unauthorized failure", result.Outcomes[0].Err)
	}
	if source.replacementCalls != 1 {
		t.Errorf("replacement requested %d times, want 1", source.replacementCalls)
	}
}

func TestRunItemNoReplacementKeepsOriginalError(t *testing.T) {
	bad := testCred("bad")
	repo := memory.NewCredentialRepo(bad)
	source := &mockSource{
		selection:      []domain.Credential{bad},
		replacementErr: domain.ErrNoReplacement,
	}
	work := newRecordingWork()
	work.fail["bad"] = &domain.CredentialFailure{Kind: domain.FailureInsufficientQuota, Err: errors.New("out of credits")}
	o := newTestOrchestrator(source, repo, 50)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1"},
		Work:     work.fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FailedCount != 1 {
		t.Errorf("failed count = %d, want 1", result.FailedCount)
	}
	cf, ok := domain.AsCredentialFailure(result.Outcomes[0].Err)
	if !ok || cf.Kind != domain.FailureInsufficientQuota {
		t.Errorf("outcome err = %v, want the original quota failure, not the exhaustion signal", result.Outcomes[0].Err)
	}
}

func TestRunItemNonCredentialErrorNotRetried(t *testing.T) {
	c1 := testCred("c1")
	repo := memory.NewCredentialRepo(c1)
	source := &mockSource{selection: []domain.Credential{c1}}
	work := newRecordingWork()
	work.fail["c1"] = errors.New("malformed page")
	o := newTestOrchestrator(source, repo, 50)

	result, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1"},
		Work:     work.fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := work.attempts("i1"); len(got) != 1 {
		t.Errorf("attempts = %v, want 1 (content errors are not credential problems)", got)
	}
	if source.replacementCalls != 0 {
		t.Errorf("replacement requested %d times, want 0", source.replacementCalls)
	}
	if result.FailedCount != 1 {
		t.Errorf("failed count = %d, want 1", result.FailedCount)
	}
}

func TestRunRefreshesAssignedCredentials(t *testing.T) {
	c1 := testCred("c1")
	c1.Status = domain.CredentialRateLimited
	c1.FailureCount = 2
	repo := memory.NewCredentialRepo(c1)
	source := &mockSource{selection: []domain.Credential{c1}}
	o := newTestOrchestrator(source, repo, 50)

	_, err := o.Run(context.Background(), Request{
		UserID:   "u1",
		Provider: "apify",
		Items:    []string{"i1"},
		Work:     newRecordingWork().fn,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored, _ := repo.Get("c1")
	if stored.Status != domain.CredentialActive {
		t.Errorf("status = %s, want active after a completed batch", stored.Status)
	}
	if stored.FailureCount != 0 {
		t.Errorf("failure count = %d, want 0", stored.FailureCount)
	}
	if stored.LastUsed == nil || !stored.LastUsed.Equal(testNow) {
		t.Errorf("last used = %v, want %v", stored.LastUsed, testNow)
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		size  int
		want  int
	}{
		{"empty", nil, 50, 0},
		{"single partial batch", []string{"a", "b"}, 50, 1},
		{"exact multiple", []string{"a", "b", "c", "d"}, 2, 2},
		{"remainder batch", []string{"a", "b", "c"}, 2, 2},
		{"size one", []string{"a", "b", "c"}, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := partition(tt.items, tt.size)
			if len(got) != tt.want {
				t.Errorf("partition produced %d batches, want %d", len(got), tt.want)
			}
			total := 0
			for _, b := range got {
				total += len(b)
			}
			if total != len(tt.items) {
				t.Errorf("partition covers %d items, want %d", total, len(tt.items))
			}
		})
	}
}
