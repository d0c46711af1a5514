package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/comfypanel/comfypanel/client"
)

// Backend is the job backend the coordinator drives. *client.Client implements it.
type Backend interface {
	Generate(ctx context.Context, req client.GenerationRequest) (*client.JobHandle, error)
	Status(ctx context.Context, promptID string) (*client.JobStatus, error)
}

// GalleryStore records finished images. *client.GalleryClient and *gallery.Store implement it.
type GalleryStore interface {
	CreateGalleryItem(ctx context.Context, item client.GalleryItemCreate) (*client.GalleryItem, error)
}

var (
	ErrAlreadyGenerating = errors.New("a generation run is already in flight")
	ErrInvalidRequest    = errors.New("invalid generation request")
)

const DefaultPollInterval = time.Second

type Option func(*Coordinator)

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxWait bounds how long one job is polled before it resolves as timed out.
// Zero waits until the backend reports a result or the context ends.
func WithMaxWait(d time.Duration) Option {
	return func(c *Coordinator) {
		c.maxWait = d
	}
}

// WithRefreshSignal shares a refresh signal between coordinators and gallery views.
func WithRefreshSignal(r *RefreshSignal) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.refresh = r
		}
	}
}

// Progress is the sampler progress last reported on the event stream.
type Progress struct {
	Value int
	Max   int
}

// Percent returns the progress as 0..100.
func (p Progress) Percent() float64 {
	if p.Max <= 0 {
		return 0
	}
	return float64(p.Value) / float64(p.Max) * 100
}

// Coordinator owns the lifecycle of generation runs for one session. Only one run may be
// in flight per coordinator; independent coordinators do not interfere.
type Coordinator struct {
	backend      Backend
	store        GalleryStore
	pollInterval time.Duration
	maxWait      time.Duration
	refresh      *RefreshSignal

	generating atomic.Bool
	processing atomic.Bool

	mu       sync.Mutex
	status   string
	progress Progress
}

func New(backend Backend, store GalleryStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:      backend,
		store:        store,
		pollInterval: DefaultPollInterval,
		refresh:      NewRefreshSignal(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsGenerating reports whether a run is in flight.
func (c *Coordinator) IsGenerating() bool {
	return c.generating.Load()
}

// Processing reports whether the event stream says the backend is executing a prompt.
func (c *Coordinator) Processing() bool {
	return c.processing.Load()
}

// LastStatus returns the most recent status label.
func (c *Coordinator) LastStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *Coordinator) Refresh() *RefreshSignal {
	return c.refresh
}

func (c *Coordinator) setProgress(p Progress) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()
}

// SubmitBatch starts a run that submits req batchCount times, one after the other, and
// returns its updates. The channel is closed after the terminal update, which is
// delivered even when ctx is cancelled; read until the channel is closed. An error is
// only returned when the run could not start.
func (c *Coordinator) SubmitBatch(ctx context.Context, req client.GenerationRequest, batchCount int) (<-chan Update, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if batchCount < 1 {
		return nil, fmt.Errorf("%w: batch count must be at least 1, got %d", ErrInvalidRequest, batchCount)
	}
	if !c.generating.CompareAndSwap(false, true) {
		return nil, ErrAlreadyGenerating
	}

	updates := make(chan Update, 16)
	go c.run(ctx, req.Clone(), batchCount, updates)
	return updates, nil
}

// Run is SubmitBatch for callers that only need the result. It blocks until the run
// ends and returns the terminal update.
func (c *Coordinator) Run(ctx context.Context, req client.GenerationRequest, batchCount int) (Update, error) {
	updates, err := c.SubmitBatch(ctx, req, batchCount)
	if err != nil {
		return Update{}, err
	}
	var last Update
	for u := range updates {
		last = u
	}
	return last, nil
}

func (c *Coordinator) run(ctx context.Context, req client.GenerationRequest, total int, out chan<- Update) {
	runsInFlight.Inc()
	c.setProgress(Progress{})

	var final Update
	defer func() {
		if r := recover(); r != nil {
			slog.Error("generation run panicked", "panic", r)
			final = Update{Kind: UpdateError, Total: total, Status: StatusErrorSending, Err: fmt.Errorf("panic: %v", r)}
		}
		final.Terminal = true
		c.setProgress(Progress{})
		c.processing.Store(false)
		c.generating.Store(false)
		runsInFlight.Dec()
		c.emit(ctx, out, final)
		close(out)
	}()

	final = c.loop(ctx, req, total, out)
}

func (c *Coordinator) loop(ctx context.Context, req client.GenerationRequest, total int, out chan<- Update) Update {
	saved := 0
	for i := 1; i <= total; i++ {
		if ctx.Err() != nil {
			return Update{Kind: UpdateCancelled, Batch: i, Total: total, Status: StatusCancelled, Saved: saved, Err: ctx.Err()}
		}

		c.emit(ctx, out, Update{Kind: UpdateQueuing, Batch: i, Total: total, Status: statusQueuing(i, total), Saved: saved})

		started := time.Now()
		handle, err := c.backend.Generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return Update{Kind: UpdateCancelled, Batch: i, Total: total, Status: StatusCancelled, Saved: saved, Err: ctx.Err()}
			}
			recordSubmission("error")
			slog.Error("sending generation request", "batch", i, "total", total, "error", err)
			return Update{Kind: UpdateError, Batch: i, Total: total, Status: StatusErrorSending, Saved: saved, Err: err}
		}
		if !handle.Queued() {
			recordSubmission("failed_to_queue")
			slog.Warn("backend did not queue the job", "batch", i, "status", handle.Status, "detail", handle.Detail)
			return Update{
				Kind: UpdateFailedToQueue, Batch: i, Total: total, Status: StatusFailedToQueue, Saved: saved,
				Err: fmt.Errorf("job not queued: %s", handle.Detail),
			}
		}
		recordSubmission("queued")

		c.emit(ctx, out, Update{Kind: UpdateGenerating, Batch: i, Total: total, Status: statusGenerating(i, total), Saved: saved, PromptID: handle.PromptID})

		outcome, err := c.waitForCompletion(ctx, handle.PromptID)
		if err != nil {
			return Update{Kind: UpdateCancelled, Batch: i, Total: total, Status: StatusCancelled, Saved: saved, PromptID: handle.PromptID, Err: err}
		}
		recordOutcome(outcome, time.Since(started).Seconds())

		switch outcome.Status {
		case OutcomeSuccess:
			n := c.persist(ctx, req, handle.PromptID, outcome.Refs)
			saved += n
			if n > 0 {
				c.refresh.Bump()
			}
			c.emit(ctx, out, Update{Kind: UpdateSaved, Batch: i, Total: total, Status: statusSaved(n, i, total), Saved: saved, PromptID: handle.PromptID})
		case OutcomeFailed:
			c.emit(ctx, out, Update{Kind: UpdateBatchFailed, Batch: i, Total: total, Status: statusFailed(i), Saved: saved, PromptID: handle.PromptID})
		case OutcomeTimeout:
			c.emit(ctx, out, Update{Kind: UpdateBatchTimedOut, Batch: i, Total: total, Status: statusTimedOut(i), Saved: saved, PromptID: handle.PromptID})
		}
	}
	return Update{Kind: UpdateFinished, Batch: total, Total: total, Status: StatusFinished, Saved: saved}
}

// persist writes one gallery item per output file, in order. Failures are logged and
// skipped; earlier writes are kept. Writes are not tied to ctx cancellation so a
// finished image is still recorded when the caller goes away mid-write.
func (c *Coordinator) persist(ctx context.Context, req client.GenerationRequest, promptID string, refs []client.OutputRef) int {
	if c.store == nil {
		return 0
	}
	writeCtx := context.WithoutCancel(ctx)
	saved := 0
	for _, ref := range refs {
		item, err := c.store.CreateGalleryItem(writeCtx, client.NewGalleryItemCreate(req, ref))
		recordGalleryWrite(err)
		if err != nil {
			slog.Error("saving gallery item", "prompt_id", promptID, "filename", ref.Filename, "error", err)
			continue
		}
		slog.Debug("saved gallery item", "prompt_id", promptID, "id", item.ID, "filename", item.Filename)
		saved++
	}
	return saved
}

// emit records u as the current status and delivers it. Once ctx is done, progress
// updates that cannot be delivered immediately are dropped. The terminal update is always
// delivered, so callers must drain the channel until it is closed.
func (c *Coordinator) emit(ctx context.Context, out chan<- Update, u Update) {
	c.mu.Lock()
	c.status = u.Status
	c.mu.Unlock()

	if u.Terminal {
		out <- u
		return
	}
	select {
	case out <- u:
	case <-ctx.Done():
		select {
		case out <- u:
		default:
		}
	}
}
