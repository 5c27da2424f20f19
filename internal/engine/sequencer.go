package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ErrStopped is returned for jobs submitted to, or still queued in, a
// sequencer whose Run loop has ended.
var ErrStopped = errors.New("sequencer stopped")

type job struct {
	ctx  context.Context
	key  string
	fn   func() error
	done chan error
}

// Sequencer serializes work per key. Every key hashes onto one shard and each
// shard runs its jobs one at a time on a single goroutine, so two jobs for the
// same proposal never overlap while different proposals proceed in parallel.
type Sequencer struct {
	shards  []chan job
	stopped chan struct{}

	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewSequencer creates a sequencer with the given number of shards, each
// buffering up to inboxSize pending jobs.
func NewSequencer(shards, inboxSize int) *Sequencer {
	if shards <= 0 {
		shards = 1
	}
	if inboxSize < 0 {
		inboxSize = 0
	}
	s := &Sequencer{
		shards:  make([]chan job, shards),
		stopped: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = make(chan job, inboxSize)
	}
	return s
}

// Run starts one loop per shard and blocks until ctx is done and every loop
// has returned. It must be called once.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Int("shards", len(s.shards)))

	var wg sync.WaitGroup
	for i, inbox := range s.shards {
		wg.Add(1)
		go func(i int, inbox chan job) {
			defer wg.Done()
			s.loop(ctx, inbox)
		}(i, inbox)
	}

	<-ctx.Done()
	slog.Info("Sequencer stopping...")
	wg.Wait()
	close(s.stopped)
}

func (s *Sequencer) loop(ctx context.Context, inbox chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-inbox:
			j.done <- s.execute(j)
		}
	}
}

// execute runs one job. A job whose caller gave up before it started is
// skipped; a panicking job fails alone and the shard keeps going.
func (s *Sequencer) execute(j job) (err error) {
	if cerr := j.ctx.Err(); cerr != nil {
		return cerr
	}
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			slog.Error("CRITICAL_PANIC_DETECTED", slog.String("key", j.key), slog.Any("panic", r))
			err = fmt.Errorf("sequencer: job for %s panicked: %v", j.key, r)
		}
	}()
	defer s.processed.Add(1)
	return j.fn()
}

// Do runs fn on the shard owning key and returns its error. Once queued the
// job is waited for even if ctx is cancelled meanwhile, so a nil error always
// means fn ran to completion.
func (s *Sequencer) Do(ctx context.Context, key string, fn func() error) error {
	j := job{ctx: ctx, key: key, fn: fn, done: make(chan error, 1)}

	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	select {
	case s.shardFor(key) <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}

	select {
	case err := <-j.done:
		return err
	case <-s.stopped:
		// The loop may have finished the job right before exiting.
		select {
		case err := <-j.done:
			return err
		default:
			return ErrStopped
		}
	}
}

func (s *Sequencer) shardFor(key string) chan job {
	return s.shards[s.shardIndex(key)]
}

func (s *Sequencer) shardIndex(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.shards)))
}

// Processed returns the number of jobs that ran.
func (s *Sequencer) Processed() uint64 {
	return s.processed.Load()
}

// Panics returns the number of jobs that panicked.
func (s *Sequencer) Panics() uint64 {
	return s.panics.Load()
}

// QueueDepth returns the number of jobs waiting across all shards.
func (s *Sequencer) QueueDepth() int {
	n := 0
	for _, inbox := range s.shards {
		n += len(inbox)
	}
	return n
}
