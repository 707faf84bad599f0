// Package apify wraps the external scrape-job API: submit a run, poll it to
// completion, fetch the resulting dataset. Callers supply the credential
// per call; the client holds no account state of its own.
package apify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/scraping/metrics"
)

// Run states reported by the provider.
const (
	RunRunning   = "RUNNING"
	RunSucceeded = "SUCCEEDED"
	RunFailed    = "FAILED"
)

var errStillRunning = errors.New("actor run still in progress")

// RunInfo is the subset of run metadata the driver needs.
type RunInfo struct {
	ID        string
	Status    string
	DatasetID string
}

// Client talks to the Apify REST API.
type Client struct {
	http         *resty.Client
	pollInterval time.Duration
	maxPolls     int
	fetchGrace   time.Duration
	log          *slog.Logger
}

// NewClient creates an Apify API client.
func NewClient(cfg config.ApifyConfig, log *slog.Logger) *Client {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.SubmitTimeout.Std())
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		http:         client,
		pollInterval: cfg.PollInterval.Std(),
		maxPolls:     cfg.MaxPollAttempts,
		fetchGrace:   cfg.FetchGrace.Std(),
		log:          log,
	}
}

// WhoAmI performs a lightweight authenticated identity call. A nil return
// means the token currently works; otherwise the error carries the failure
// classification.
func (c *Client) WhoAmI(ctx context.Context, token string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get("/users/me")
	return classify(resp, err)
}

type runEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

// StartRun submits an actor run and returns its run ID.
func (c *Client) StartRun(ctx context.Context, token, actorID string, input any) (string, error) {
	var env runEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(input).
		SetResult(&env).
		Post(fmt.Sprintf("/acts/%s/runs", actorID))
	if cerr := classify(resp, err); cerr != nil {
		return "", cerr
	}
	if env.Data.ID == "" {
		return "", fmt.Errorf("apify: run submission returned no run id")
	}
	return env.Data.ID, nil
}

// RunStatus fetches the current state of a run.
func (c *Client) RunStatus(ctx context.Context, token, actorID, runID string) (RunInfo, error) {
	var env runEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&env).
		Get(fmt.Sprintf("/acts/%s/runs/%s", actorID, runID))
	if cerr := classify(resp, err); cerr != nil {
		return RunInfo{}, cerr
	}
	return RunInfo{
		ID:        env.Data.ID,
		Status:    env.Data.Status,
		DatasetID: env.Data.DefaultDatasetID,
	}, nil
}

// DatasetItems fetches the raw records of a dataset.
func (c *Client) DatasetItems(ctx context.Context, token, datasetID string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&items).
		Get(fmt.Sprintf("/datasets/%s/items", datasetID))
	if cerr := classify(resp, err); cerr != nil {
		return nil, cerr
	}
	return items, nil
}

// RunActor drives one actor run end to end: submit, poll until terminal,
// wait out the provider's dataset indexing lag, fetch the dataset.
func (c *Client) RunActor(ctx context.Context, token, actorID string, input any) ([]json.RawMessage, error) {
	start := time.Now()

	runID, err := c.StartRun(ctx, token, actorID, input)
	if err != nil {
		return nil, err
	}
	c.log.Debug("actor run started", "actor", actorID, "run", runID)

	info, err := c.waitForRun(ctx, token, actorID, runID)
	if err != nil {
		return nil, err
	}
	if info.DatasetID == "" {
		return nil, fmt.Errorf("apify: run %s succeeded without a dataset id", runID)
	}

	// Dataset items lag the run's SUCCEEDED state on the provider side.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.fetchGrace):
	}

	items, err := c.DatasetItems(ctx, token, info.DatasetID)
	if err != nil {
		return nil, err
	}

	metrics.ActorRunDuration.Observe(time.Since(start).Seconds())
	return items, nil
}

// waitForRun polls a run at a fixed interval up to a fixed attempt cap.
// RUNNING keeps polling, SUCCEEDED returns, any other terminal state or a
// status-call error aborts immediately.
func (c *Client) waitForRun(ctx context.Context, token, actorID, runID string) (RunInfo, error) {
	var info RunInfo
	attempts := 0

	backoff := retry.WithMaxRetries(uint64(c.maxPolls), retry.NewConstant(c.pollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		ri, err := c.RunStatus(ctx, token, actorID, runID)
		if err != nil {
			return err
		}
		switch ri.Status {
		case RunSucceeded:
			info = ri
			return nil
		case RunRunning, "": // treat a missing status as still pending
			return retry.RetryableError(errStillRunning)
		default:
			return fmt.Errorf("apify: run %s ended with status %s", runID, ri.Status)
		}
	})

	metrics.ActorPollAttempts.Observe(float64(attempts))

	if errors.Is(err, errStillRunning) {
		return info, fmt.Errorf("apify: run %s timed out after %d polls", runID, attempts)
	}
	return info, err
}
