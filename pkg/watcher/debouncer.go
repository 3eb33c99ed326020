package watcher

import (
	"context"
	"time"

	"github.com/ritzau/reach-analyzer/pkg/logging"
)

// Default debounce timings for watch mode
const (
	DefaultQuietPeriod = 300 * time.Millisecond
	DefaultMaxWait     = 2 * time.Second
)

// Debouncer batches rapid file system events to avoid excessive re-analysis.
// A batch is flushed after quietPeriod without new events, or maxWait after
// its first event, whichever comes first.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing. Output is closed when
// ctx is cancelled or the input channel closes.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet       *time.Timer
		deadline    *time.Timer
		accumulated = make(map[ChangeType][]string)
		eventCount  int
	)

	stopTimers := func() {
		if quiet != nil {
			quiet.Stop()
			quiet = nil
		}
		if deadline != nil {
			deadline.Stop()
			deadline = nil
		}
	}
	defer stopTimers()

	send := func(t ChangeType) bool {
		paths := accumulated[t]
		if len(paths) == 0 {
			return true
		}
		select {
		case d.output <- ChangeEvent{Type: t, Paths: dedupe(paths), Timestamp: time.Now()}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Config changes first: the reload must happen before the re-run
	flush := func() bool {
		stopTimers()
		if eventCount == 0 {
			return true
		}
		logging.Debug("flushing accumulated events", "count", eventCount)

		ok := send(ChangeTypeConfig) && send(ChangeTypeSource)
		accumulated = make(map[ChangeType][]string)
		eventCount = 0
		return ok
	}

	timerC := func(t *time.Timer) <-chan time.Time {
		if t == nil {
			return nil
		}
		return t.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			accumulated[event.Type] = append(accumulated[event.Type], event.Paths...)
			eventCount++

			if quiet == nil {
				quiet = time.NewTimer(d.quietPeriod)
			} else {
				quiet.Reset(d.quietPeriod)
			}
			if deadline == nil {
				deadline = time.NewTimer(d.maxWait)
			}

		case <-timerC(quiet):
			if !flush() {
				return
			}

		case <-timerC(deadline):
			if !flush() {
				return
			}
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
