package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"fitsalign/internal/imgcat"
	"fitsalign/internal/logging"
	"fitsalign/internal/storage"
)

// JobType enumerates supported processing categories.
type JobType string

const (
	// JobQuads builds the star list and quads of one catalog file.
	JobQuads JobType = "quads"
	// JobMatch proposes quad candidates between a reference and a target
	// catalog. The reference path is passed in Options["reference"].
	JobMatch JobType = "match"
)

// ErrQueueFull is returned by Submit when the job queue has no room.
var ErrQueueFull = errors.New("job queue is full")

// Job represents a single processing request.
type Job struct {
	ID        string
	Type      JobType
	InputPath string
	Options   map[string]any
}

// NewJob returns a job with a fresh ID.
func NewJob(t JobType, input string, options map[string]any) Job {
	return Job{ID: uuid.NewString(), Type: t, InputPath: input, Options: options}
}

// Result captures the outcome of a Job. Catalog is the target image
// catalog when the job got far enough to build one.
type Result struct {
	Job     Job
	Error   error
	Meta    map[string]any
	Catalog *imgcat.Catalog
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Pipeline orchestrates job dispatch across workers. Each job owns the
// catalogs it builds; workers never share one.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	store     *storage.Store
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New creates a Pipeline running concurrency workers over catalog jobs.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, settings Settings) *Pipeline {
	return NewWithProcessor(ctx, concurrency, logger, store, newRouter(logger, store, settings))
}

// NewWithProcessor is New with a custom Processor.
func NewWithProcessor(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, proc Processor) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		processor: proc,
		log:       logger,
		jobs:      make(chan Job, concurrency*2),
		cancel:    cancel,
		store:     store,
		subs:      make(map[int]chan Result),
	}

	p.startOnce.Do(func() {
		for i := 0; i < concurrency; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})

	return p
}

func (p *Pipeline) recordQueued(job Job) {
	if p.store == nil {
		return
	}
	optsJSON, _ := json.Marshal(job.Options)
	_ = p.store.RecordJobQueued(storage.JobRecord{
		ID:          job.ID,
		JobType:     string(job.Type),
		Status:      "queued",
		InputPath:   job.InputPath,
		OptionsJSON: string(optsJSON),
	})
}

// Submit adds a job to the processing queue without blocking.
func (p *Pipeline) Submit(job Job) error {
	p.recordQueued(job)
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait adds a job to the queue, waiting for room until ctx is done.
func (p *Pipeline) SubmitWait(ctx context.Context, job Job) error {
	p.recordQueued(job)
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunBatch submits every job and waits until all of them have produced a
// result or ctx is done. Results are returned in submission order; jobs
// that did not finish have a zero Result.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []Job) ([]Result, error) {
	pending := make(map[string]int, len(jobs))
	for i, j := range jobs {
		pending[j.ID] = i
	}
	results, unsub := p.subscribe(len(jobs) + 8)
	defer unsub()

	errc := make(chan error, 1)
	go func() {
		for _, j := range jobs {
			if err := p.SubmitWait(ctx, j); err != nil {
				errc <- err
				return
			}
		}
	}()

	out := make([]Result, len(jobs))
	for len(pending) > 0 {
		select {
		case res, ok := <-results:
			if !ok {
				return out, errors.New("pipeline stopped")
			}
			if i, found := pending[res.Job.ID]; found {
				out[i] = res
				delete(pending, res.Job.ID)
			}
		case err := <-errc:
			return out, err
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, nil
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.run(ctx, id, job)
		}
	}
}

func (p *Pipeline) run(ctx context.Context, worker int, job Job) {
	start := time.Now()
	logging.LogJobStart(p.log, string(job.Type), job.ID, job.InputPath, job.Options)

	if p.store != nil {
		_ = p.store.RecordJobStart(job.ID)
	}
	res := p.processor.Process(ctx, job)
	res.Job = job
	duration := time.Since(start)

	status := "completed"
	if res.Error != nil {
		status = "failed"
		logging.LogJobError(p.log, string(job.Type), job.ID, duration, res.Error, map[string]any{
			"input":   job.InputPath,
			"options": job.Options,
			"worker":  worker,
		})
	} else {
		logging.LogJobComplete(p.log, string(job.Type), job.ID, duration, res.Meta)
	}
	if p.store != nil {
		_ = p.store.RecordJobResult(job.ID, status, res.Meta, errString(res.Error))
	}

	p.broadcast(res)
}

// Subscribe returns a channel for receiving job results and an unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	return p.subscribe(8)
}

func (p *Pipeline) subscribe(buf int) (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, buf)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- res:
		default:
			p.log.Warn("result channel full", "subscriber", id, "job", res.Job.ID)
		}
	}
}
