package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/metrics"
	"github.com/JakeFAU/afd-harvester/internal/tsv"
)

// ErrStorage marks a storage failure; it halts a run.
var ErrStorage = afd.ErrStorage

// DefaultWorkers is the pool width per chunk.
const DefaultWorkers = 10

// Task processes one title.
type Task[R any] func(ctx context.Context, title string) (R, error)

// Job describes one chunked pass.
type Job[R any] struct {
	// Name labels logs and metrics.
	Name string
	// Dir holds the chunk artifacts.
	Dir string
	// Prefix names artifacts "<Prefix>_<NNNN>.tsv", NNNN being the 1-based chunk index.
	Prefix string
	Header []string
	Encode func([]R) [][]string
	Task   Task[R]
	// Fallback, when set, turns a failed title into a row that is still written.
	Fallback func(title string, err error) R
	// Sink, when set, receives the rows of every written chunk.
	Sink func(ctx context.Context, rows []R) error
}

// Config tunes a Runner.
type Config struct {
	Chunks  int
	Workers int
}

// Runner executes a Job chunk by chunk.
type Runner[R any] struct {
	cfg      Config
	job      Job[R]
	errLog   *ErrorLog
	cooldown CooldownPolicy
	sleeper  Sleeper
	progress func(job string, sum Summary)
	logger   *zap.Logger
}

// Summary reports a completed run.
type Summary struct {
	Chunks    int
	Processed int
	Skipped   int
	Succeeded int
	Failed    int
}

// Option customizes a Runner.
type Option func(*options)

type options struct {
	cooldown CooldownPolicy
	sleeper  Sleeper
	progress func(job string, sum Summary)
}

// WithCooldown replaces the default cooldown policy.
func WithCooldown(p CooldownPolicy) Option {
	return func(o *options) {
		if p != nil {
			o.cooldown = p
		}
	}
}

// WithSleeper replaces the real-timer sleeper.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleeper = s
		}
	}
}

// WithProgress reports the running summary after every chunk.
func WithProgress(fn func(job string, sum Summary)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// NewRunner validates job and builds a Runner.
func NewRunner[R any](cfg Config, job Job[R], errLog *ErrorLog, logger *zap.Logger, opts ...Option) (*Runner[R], error) {
	if job.Task == nil || job.Encode == nil {
		return nil, fmt.Errorf("job %q: task and encoder are required", job.Name)
	}
	if strings.TrimSpace(job.Dir) == "" || strings.TrimSpace(job.Prefix) == "" {
		return nil, fmt.Errorf("job %q: dir and prefix are required", job.Name)
	}
	if errLog == nil {
		return nil, fmt.Errorf("job %q: error log is required", job.Name)
	}
	if cfg.Chunks < 1 {
		return nil, fmt.Errorf("job %q: chunks must be positive", job.Name)
	}
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{cooldown: DefaultCooldown(), sleeper: TimerSleeper{}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(job.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, job.Dir, err)
	}
	return &Runner[R]{
		cfg:      cfg,
		job:      job,
		errLog:   errLog,
		cooldown: o.cooldown,
		sleeper:  o.sleeper,
		progress: o.progress,
		logger:   logger.With(zap.String("job", job.Name)),
	}, nil
}

// ArtifactPath returns the artifact of the 1-based chunk index.
func (r *Runner[R]) ArtifactPath(index int) string {
	return filepath.Join(r.job.Dir, fmt.Sprintf("%s_%04d.tsv", r.job.Prefix, index))
}

// Run processes titles. Chunks whose artifact exists are skipped without any
// task call. Per-title failures go to the error log; only storage failures
// and cancellation stop the run.
func (r *Runner[R]) Run(ctx context.Context, titles []string) (Summary, error) {
	chunks := Partition(titles, r.cfg.Chunks)
	sum := Summary{Chunks: len(chunks)}
	r.logger.Info("starting run",
		zap.Int("titles", len(titles)), zap.Int("chunks", len(chunks)), zap.Int("workers", r.cfg.Workers))

	for i, chunk := range chunks {
		index := i + 1
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("run canceled before chunk %d: %w", index, err)
		}
		path := r.ArtifactPath(index)
		if _, err := os.Stat(path); err == nil {
			r.logger.Debug("chunk already processed", zap.Int("chunk", index), zap.String("path", path))
			metrics.ObserveChunk(r.job.Name, metrics.ChunkSkipped)
			sum.Skipped++
			r.report(sum)
			continue
		}

		rows, failed, err := r.runChunk(ctx, index, chunk)
		if err != nil {
			return sum, err
		}
		if err := tsv.WriteFile(path, r.job.Header, r.job.Encode(rows)); err != nil {
			return sum, fmt.Errorf("%w: write chunk %d: %w", ErrStorage, index, err)
		}
		if r.job.Sink != nil && len(rows) > 0 {
			if err := r.job.Sink(ctx, rows); err != nil {
				return sum, fmt.Errorf("%w: sink chunk %d: %w", ErrStorage, index, err)
			}
		}
		metrics.ObserveChunk(r.job.Name, metrics.ChunkProcessed)
		sum.Processed++
		sum.Failed += failed
		sum.Succeeded += len(chunk) - failed
		r.report(sum)
		r.logger.Info("chunk written",
			zap.Int("chunk", index), zap.Int("rows", len(rows)), zap.Int("failed", failed), zap.String("path", path))

		if index == len(chunks) {
			break
		}
		if d := r.cooldown.Pause(sum.Processed); d > 0 {
			r.logger.Info("cooling down", zap.Int("chunk", index), zap.Duration("pause", d))
			metrics.ObserveCooldown(d)
			if err := r.sleeper.Sleep(ctx, d); err != nil {
				return sum, fmt.Errorf("cooldown interrupted: %w", err)
			}
		}
	}
	r.logger.Info("run complete",
		zap.Int("processed", sum.Processed), zap.Int("skipped", sum.Skipped),
		zap.Int("succeeded", sum.Succeeded), zap.Int("failed", sum.Failed))
	return sum, nil
}

func (r *Runner[R]) report(sum Summary) {
	if r.progress != nil {
		r.progress(r.job.Name, sum)
	}
}

type outcome[R any] struct {
	row R
	ok  bool
	err error
}

// runChunk fans the chunk out to the pool. Rows keep the input order.
func (r *Runner[R]) runChunk(ctx context.Context, index int, titles []string) ([]R, int, error) {
	results := make([]outcome[R], len(titles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, title := range titles {
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			row, err := r.safeTask(gctx, title)
			if err == nil {
				results[i] = outcome[R]{row: row, ok: true}
				metrics.ObserveCase(r.job.Name, metrics.CaseResolved)
				return nil
			}
			if errors.Is(err, ErrStorage) {
				return err
			}
			if gctx.Err() != nil {
				// Canceled titles are retried by the next run, not logged.
				return nil
			}
			metrics.ObserveCase(r.job.Name, metrics.CaseFailed)
			r.logger.Error("case failed", zap.Int("chunk", index), zap.String("title", title), zap.Error(err))
			if logErr := r.errLog.Append(index, title, err); logErr != nil {
				return logErr
			}
			results[i] = outcome[R]{err: err}
			if r.job.Fallback != nil {
				results[i].row = r.job.Fallback(title, err)
				results[i].ok = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("chunk %d: %w", index, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("chunk %d canceled: %w", index, err)
	}

	rows := make([]R, 0, len(titles))
	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
		}
		if res.ok {
			rows = append(rows, res.row)
		}
	}
	return rows, failed, nil
}

func (r *Runner[R]) safeTask(ctx context.Context, title string) (row R, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Debug("task panic", zap.String("title", title), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.job.Task(ctx, title)
}
