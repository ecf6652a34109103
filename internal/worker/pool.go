// Package worker evaluates queued radix arithmetic jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/luxfi/fhe-integer/integer"
	"github.com/luxfi/fhe-integer/internal/queue"
	"github.com/luxfi/fhe-integer/internal/storage"
)

// Config configures a Pool.
type Config struct {
	Workers int
	Queue   queue.Queue
	Storage storage.Storage
	Key     *integer.ServerKey
	Logger  zerolog.Logger

	// RetryDelay is the pause after a failed pop.
	RetryDelay time.Duration
	// StopTimeout bounds how long Stop waits for in-flight jobs.
	StopTimeout time.Duration
}

// Pool runs Workers goroutines pulling jobs from the queue.
type Pool struct {
	cfg Config
	log zerolog.Logger

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Bool

	succeeded atomic.Int64
	failed    atomic.Int64
}

// New creates a pool. It does not start any goroutine.
func New(cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	return &Pool{cfg: cfg, log: cfg.Logger.With().Str("component", "worker").Logger()}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("pool already running")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.log.Info().Int("workers", p.cfg.Workers).Msg("starting workers")
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight jobs.
func (p *Pool) Stop() error {
	if !p.running.Load() {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.cfg.StopTimeout):
		return errors.New("shutdown timeout")
	}
	p.running.Store(false)
	p.log.Info().Msg("worker pool stopped")
	return nil
}

// Succeeded returns the number of completed jobs.
func (p *Pool) Succeeded() int64 { return p.succeeded.Load() }

// Failed returns the number of failed jobs.
func (p *Pool) Failed() int64 { return p.failed.Load() }

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()
	for ctx.Err() == nil {
		job, err := p.cfg.Queue.Pop(ctx)
		switch {
		case errors.Is(err, queue.ErrQueueEmpty):
			continue
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			log.Warn().Err(err).Msg("pop job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.RetryDelay):
			}
			continue
		}
		p.Process(ctx, job)
	}
}

// Process evaluates one job and records its outcome in the queue.
func (p *Pool) Process(ctx context.Context, job *queue.Job) {
	log := p.log.With().Str("job", job.ID).Stringer("op", job.Operation).Logger()
	start := time.Now()

	job.Status = queue.StatusProcessing
	if err := p.cfg.Queue.Update(ctx, job); err != nil {
		log.Warn().Err(err).Msg("mark processing")
	}

	handle, err := p.safeEvaluate(ctx, job)
	if err != nil {
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		p.failed.Add(1)
		log.Error().Err(err).Msg("job failed")
	} else {
		job.Status = queue.StatusCompleted
		job.ResultHandle = string(handle)
		p.succeeded.Add(1)
		log.Info().Dur("took", time.Since(start)).Msg("job completed")
	}
	if err := p.cfg.Queue.Update(ctx, job); err != nil {
		log.Warn().Err(err).Msg("record result")
	}
}

// safeEvaluate reports an operator panic as a job error.
func (p *Pool) safeEvaluate(ctx context.Context, job *queue.Job) (handle storage.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", job.Operation, r)
		}
	}()
	return p.evaluate(ctx, job)
}

func (p *Pool) evaluate(ctx context.Context, job *queue.Job) (storage.Handle, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	operands := make([]*integer.RadixCiphertext, len(job.Operands))
	for i, h := range job.Operands {
		ct, err := storage.LoadRadix(ctx, p.cfg.Storage, storage.Handle(h))
		if err != nil {
			return "", fmt.Errorf("load operand %d: %w", i, err)
		}
		if err := p.cfg.Key.Validate(ct); err != nil {
			return "", fmt.Errorf("operand %d: %w", i, err)
		}
		operands[i] = ct
	}
	if err := sameShape(operands); err != nil {
		return "", err
	}

	var (
		result *integer.RadixCiphertext
		err    error
	)
	sk := p.cfg.Key
	switch job.Operation {
	case queue.OpAdd:
		result, err = sk.SmartAdd(operands[0], operands[1])
	case queue.OpSub:
		result, err = sk.SmartSub(operands[0], operands[1])
	case queue.OpSum:
		result, err = sk.SmartSumSeq(operands)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", job.Operation, err)
	}

	handle, err := storage.StoreRadix(ctx, p.cfg.Storage, result)
	if err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}
	return handle, nil
}

// sameShape rejects operands with differing block counts.
func sameShape(cts []*integer.RadixCiphertext) error {
	for i, ct := range cts {
		if ct.NumBlocks() != cts[0].NumBlocks() {
			return fmt.Errorf("operand %d has %d blocks, operand 0 has %d", i, ct.NumBlocks(), cts[0].NumBlocks())
		}
	}
	return nil
}
