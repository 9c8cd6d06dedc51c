// Package worker is the reference derivative worker. It sleeps until a wake
// call delivers a capability token, then drains the pending queue with it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/queue"
	"asset-pipeline/internal/render"
	"asset-pipeline/internal/workerclient"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type API interface {
	ListPending(ctx context.Context, limit int) ([]queue.PendingJob, error)
	PatchJob(ctx context.Context, id uuid.UUID, req workerclient.PatchRequest) (*workerclient.Job, error)
	GetAsset(ctx context.Context, id uuid.UUID) (*queue.WorkerAsset, error)
	PutObject(ctx context.Context, url, contentType string, body []byte) error
}

// ClientFactory builds an API client bound to one wake token.
type ClientFactory func(token string) API

type Stats struct {
	Completed int
	Failed    int
	Skipped   int
}

var errClaimed = errors.New("job claimed by another worker")

type Runner struct {
	newAPI       ClientFactory
	renderer     render.Renderer
	batch        int
	drainTimeout time.Duration
	log          *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	running   bool
	nextToken string
}

func NewRunner(newAPI ClientFactory, renderer render.Renderer, batch int, drainTimeout time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	if batch <= 0 {
		batch = defaultBatch
	}
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		newAPI:       newAPI,
		renderer:     renderer,
		batch:        batch,
		drainTimeout: drainTimeout,
		log:          log.With("component", "worker"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Wake starts a drain with token. A wake that arrives mid-drain is folded
// into one follow-up drain using the newest token, and Wake reports false.
func (r *Runner) Wake(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.nextToken = token
		return false
	}
	r.running = true
	r.wg.Add(1)
	go r.loop(token)
	return true
}

func (r *Runner) loop(token string) {
	defer r.wg.Done()

	for {
		ctx, cancel := context.WithTimeout(r.ctx, r.drainTimeout)
		stats, err := r.Drain(ctx, token)
		cancel()
		if err != nil {
			r.log.Error("drain stopped", "error", err, "completed", stats.Completed, "failed", stats.Failed)
		} else {
			r.log.Info("drain finished", "completed", stats.Completed, "failed", stats.Failed, "skipped", stats.Skipped)
		}

		r.mu.Lock()
		if r.nextToken == "" || r.ctx.Err() != nil {
			r.running = false
			r.nextToken = ""
			r.mu.Unlock()
			return
		}
		token, r.nextToken = r.nextToken, ""
		r.mu.Unlock()
	}
}

// Stop waits for the running drain to finish. When ctx ends first the drain
// is cancelled; jobs it held return to the queue once their lease expires.
func (r *Runner) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// Drain processes pending jobs until the queue is empty or only returns jobs
// this drain already attempted.
func (r *Runner) Drain(ctx context.Context, token string) (Stats, error) {
	var stats Stats
	api := r.newAPI(token)
	seen := make(map[uuid.UUID]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		jobs, err := api.ListPending(ctx, r.batch)
		if err != nil {
			return stats, fmt.Errorf("list pending: %w", err)
		}

		fresh := 0
		for _, j := range jobs {
			if _, ok := seen[j.ID]; ok {
				continue
			}
			seen[j.ID] = struct{}{}
			fresh++

			err := r.process(ctx, api, j)
			switch {
			case err == nil:
				stats.Completed++
			case errors.Is(err, errClaimed):
				stats.Skipped++
			case ctx.Err() != nil:
				return stats, ctx.Err()
			default:
				stats.Failed++
			}
		}

		if fresh == 0 {
			return stats, nil
		}
	}
}

func (r *Runner) process(ctx context.Context, api API, j queue.PendingJob) error {
	log := r.log.With("job_id", j.ID, "asset_code", j.AssetCode)

	if _, err := api.PatchJob(ctx, j.ID, workerclient.PatchRequest{Status: string(job.StatusProcessing)}); err != nil {
		if workerclient.IsConflict(err) {
			return errClaimed
		}
		log.Warn("claim failed", "error", err)
		return err
	}

	outputs, err := r.generate(ctx, api, j)
	if err != nil {
		log.Error("job failed", "error", err)
		msg := err.Error()
		if _, patchErr := api.PatchJob(ctx, j.ID, workerclient.PatchRequest{
			Status:       string(job.StatusFailed),
			ErrorMessage: &msg,
		}); patchErr != nil {
			log.Error("failed to report job failure", "error", patchErr)
		}
		return err
	}

	if _, err := api.PatchJob(ctx, j.ID, workerclient.PatchRequest{
		Status:  string(job.StatusCompleted),
		Outputs: workerclient.Outputs(outputs),
	}); err != nil {
		log.Error("failed to report completion", "error", err)
		return err
	}

	log.Info("job completed", "outputs", len(outputs))
	return nil
}

// generate renders the asset and writes every derivative the job holds a
// capability for. It returns the keys written.
func (r *Runner) generate(ctx context.Context, api API, j queue.PendingJob) (map[asset.Derivative]string, error) {
	a, err := api.GetAsset(ctx, j.AssetID)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}

	in := render.Input{
		Code:        a.Code,
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
	}
	if a.Source != nil {
		in.Source = *a.Source
	}

	files, err := r.renderer.Render(ctx, in)
	if err != nil {
		return nil, err
	}

	if _, err := api.PatchJob(ctx, j.ID, workerclient.PatchRequest{Status: string(job.StatusProcessing)}); err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}

	var mu sync.Mutex
	written := make(map[asset.Derivative]string, len(j.URLs))

	for d := range j.URLs {
		if _, ok := files[d]; !ok {
			return nil, fmt.Errorf("renderer produced no %s", d)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for d, url := range j.URLs {
		file, key := files[d], j.Keys[d]
		g.Go(func() error {
			if err := api.PutObject(gctx, url, file.ContentType, file.Body); err != nil {
				return fmt.Errorf("upload %s: %w", d, err)
			}
			mu.Lock()
			written[d] = key
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return written, nil
}
