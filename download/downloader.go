package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
)

// ErrStalled marks a transfer that was terminated because its byte count
// stopped advancing for the configured stall window.
var ErrStalled = errors.New("transfer stalled")

// Fetcher is the transport slice the engine needs: a byte stream from an
// offset, plus whether that offset may be non-zero.
type Fetcher interface {
	Retrieve(ctx context.Context, remotePath string, w io.Writer, offset int64) error
	SupportsResume() bool
}

// Engine downloads one remote file to local storage with bounded
// attempts, growing backoff between attempts, and stall detection while
// a transfer is in flight.
type Engine struct {
	fetcher Fetcher
	cfg     *config.TransferConfig
	log     logger.Logger

	backoffInitial   time.Duration
	backoffMax       time.Duration
	stallTimeout     time.Duration
	progressInterval time.Duration

	// replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a new retrieval engine over the given fetcher.
func NewEngine(fetcher Fetcher, cfg *config.TransferConfig, log logger.Logger) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transfer config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Engine{
		fetcher:          fetcher,
		cfg:              cfg,
		log:              log,
		backoffInitial:   time.Duration(cfg.BackoffInitialSeconds) * time.Second,
		backoffMax:       time.Duration(cfg.BackoffMaxSeconds) * time.Second,
		stallTimeout:     time.Duration(cfg.StallTimeoutSeconds) * time.Second,
		progressInterval: time.Duration(cfg.ProgressIntervalSeconds) * time.Second,
		sleep:            sleepCtx,
	}, nil
}

// Fetch downloads entry into localPath. It makes up to MaxAttempts
// attempts within this call; the error returned after the last attempt
// wraps the last observed failure.
func (e *Engine) Fetch(ctx context.Context, entry model.RemoteEntry, localPath string) error {
	attempts := e.cfg.MaxAttempts

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if i > 1 {
			backoff := e.backoff(i - 1)
			e.log.Info("Retrying %s in %s (attempt %d/%d)", entry.Path, backoff, i, attempts)
			if err := e.sleep(ctx, backoff); err != nil {
				return fmt.Errorf("download aborted: %w", err)
			}
		}

		err := e.attempt(ctx, entry, localPath)
		if err == nil {
			return nil
		}
		lastErr = err
		e.log.Warn("Attempt %d/%d for %s failed: %v", i, attempts, entry.Path, err)

		if ctx.Err() != nil {
			return fmt.Errorf("download aborted: %w", lastErr)
		}
	}

	// Without resume a leftover partial can never be continued.
	if !e.canResume() {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			e.log.Warn("Failed to remove partial file %s: %v", localPath, err)
		}
	}

	return fmt.Errorf("download failed after %d attempts: %w", attempts, lastErr)
}

// canResume reports whether partial files may be continued: resume has
// to be enabled and the transport has to honor a byte offset.
func (e *Engine) canResume() bool {
	return e.cfg.Resume && e.fetcher.SupportsResume()
}

// attempt runs a single transfer, resuming from the existing partial
// file when allowed and discarding the partial when not.
func (e *Engine) attempt(ctx context.Context, entry model.RemoteEntry, localPath string) error {
	var offset int64
	if e.canResume() {
		if st, err := os.Stat(localPath); err == nil {
			offset = st.Size()
		}
		if offset > entry.Size {
			// A partial longer than the remote file cannot be trusted.
			e.log.Warn("Partial file %s is larger than remote (%d > %d), restarting", localPath, offset, entry.Size)
			if err := os.Remove(localPath); err != nil {
				return fmt.Errorf("remove oversized partial: %w", err)
			}
			offset = 0
		}
	} else {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove partial file: %w", err)
		}
	}

	if offset == entry.Size && entry.Size > 0 {
		e.log.Debug("Local file %s already complete at %d bytes", localPath, offset)
		return nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		e.log.Info("Resuming %s from byte %d", entry.Path, offset)
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(localPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}

	cw := &countingWriter{w: f, n: offset}

	transferCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled int32
	watchdogDone := make(chan struct{})
	go e.watch(transferCtx, cancel, cw, entry, offset, &stalled, watchdogDone)

	start := time.Now()
	transferErr := e.fetcher.Retrieve(transferCtx, entry.Path, cw, offset)

	cancel()
	<-watchdogDone

	if cerr := f.Close(); cerr != nil && transferErr == nil {
		transferErr = fmt.Errorf("close local file: %w", cerr)
	}

	if transferErr != nil {
		if atomic.LoadInt32(&stalled) == 1 {
			return fmt.Errorf("%w: no progress for %s", ErrStalled, e.stallTimeout)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return transferErr
	}

	st, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat downloaded file: %w", err)
	}
	if st.Size() != entry.Size {
		if st.Size() > entry.Size {
			os.Remove(localPath)
		}
		return fmt.Errorf("size mismatch for %s: got %d bytes, want %d", entry.Path, st.Size(), entry.Size)
	}

	elapsed := time.Since(start)
	e.log.Info("Downloaded %s: %d bytes in %s (%.1f MiB/s)",
		entry.Path, entry.Size, elapsed.Round(time.Second), rateMiB(entry.Size-offset, elapsed))
	return nil
}

// watch samples the transferred byte count and cancels the transfer when
// it fails to advance for the stall window.
func (e *Engine) watch(ctx context.Context, cancel context.CancelFunc, cw *countingWriter, entry model.RemoteEntry, offset int64, stalled *int32, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.progressInterval)
	defer ticker.Stop()

	start := time.Now()
	last := atomic.LoadInt64(&cw.n)
	lastAdvance := start

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := atomic.LoadInt64(&cw.n)
			if cur > last {
				last = cur
				lastAdvance = time.Now()
				e.logProgress(entry, offset, cur, time.Since(start))
				continue
			}
			if time.Since(lastAdvance) >= e.stallTimeout {
				atomic.StoreInt32(stalled, 1)
				e.log.Warn("Transfer of %s stalled at %d bytes, terminating", entry.Path, cur)
				cancel()
				return
			}
		}
	}
}

func (e *Engine) logProgress(entry model.RemoteEntry, offset, cur int64, elapsed time.Duration) {
	rate := rateMiB(cur-offset, elapsed)
	if entry.Size <= 0 || rate <= 0 {
		e.log.Debug("Progress %s: %d bytes", entry.Path, cur)
		return
	}
	pct := float64(cur) / float64(entry.Size) * 100
	etaSecs := float64(entry.Size-cur) / (rate * 1024 * 1024)
	e.log.Debug("Progress %s: %d/%d bytes (%.1f%%) at %.1f MiB/s, ETA %s",
		entry.Path, cur, entry.Size, pct, rate, (time.Duration(etaSecs) * time.Second).Round(time.Second))
}

// backoff returns the sleep before the (n+1)-th attempt: the initial
// delay doubled per completed attempt, capped at the maximum.
func (e *Engine) backoff(n int) time.Duration {
	d := time.Duration(math.Pow(2, float64(n-1))) * e.backoffInitial
	if d > e.backoffMax || d <= 0 {
		d = e.backoffMax
	}
	return d
}

func rateMiB(bytes int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) / (1024 * 1024) / secs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// countingWriter tracks cumulative bytes including any resumed prefix.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	atomic.AddInt64(&c.n, int64(n))
	return n, err
}
