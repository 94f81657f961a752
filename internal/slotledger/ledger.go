// Package slotledger owns the slots_available counter of a timeslot.
// All capacity movement goes through Reserve and Release, which use a
// compare-and-swap on the previously read value so that the counter never
// leaves [0, capacity] no matter how many callers race on it.
package slotledger

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/govbook/booking/internal/model"
)

var (
	ErrTimeslotNotFound     = errors.New("timeslot not found")
	ErrSlotUnavailable      = errors.New("no slots available")
	ErrPastTimeslot         = errors.New("timeslot has already started")
	ErrAlreadyAtCapacity    = errors.New("timeslot already at full capacity")
	ErrConcurrencyExhausted = errors.New("slot update retries exhausted")
)

// TimeslotStore is the narrow datastore surface the ledger is built on.
type TimeslotStore interface {
	ReadTimeslot(ctx context.Context, timeslotID string) (model.Timeslot, error)
	// ConditionalUpdateSlotsAvailable sets slots_available to next only if the
	// stored value still equals expected. It reports the number of rows
	// changed: 0 means another writer got there first, not a hard error.
	ConditionalUpdateSlotsAvailable(ctx context.Context, timeslotID string, expected, next int) (int64, error)
}

const defaultMaxAttempts = 3

type Ledger struct {
	store       TimeslotStore
	logger      *slog.Logger
	maxAttempts int
	backoff     func(attempt int) time.Duration
	now         func() time.Time
}

type Config struct {
	// MaxAttempts bounds the read/compare/write loop. Defaults to 3.
	MaxAttempts int
	// Backoff returns the pause before retry n. Defaults to 10-50ms jitter
	// to de-correlate competing writers.
	Backoff func(attempt int) time.Duration
	// Now is the clock used for the past-timeslot check.
	Now func() time.Time
}

func New(store TimeslotStore, logger *slog.Logger) *Ledger {
	return NewWithConfig(store, logger, Config{})
}

func NewWithConfig(store TimeslotStore, logger *slog.Logger, cfg Config) *Ledger {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = jitterBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ledger{
		store:       store,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		now:         cfg.Now,
	}
}

func jitterBackoff(int) time.Duration {
	return time.Duration(10+rand.Intn(40)) * time.Millisecond
}

// Reserve claims one unit of the timeslot's capacity. On success it returns
// the remaining slots_available.
func (l *Ledger) Reserve(ctx context.Context, timeslotID string) (int, error) {
	return l.apply(ctx, timeslotID, l.checkReserve, -1)
}

// Release returns one previously claimed unit. It refuses to push the counter
// past capacity, which makes an accidental double release harmless.
func (l *Ledger) Release(ctx context.Context, timeslotID string) (int, error) {
	return l.apply(ctx, timeslotID, l.checkRelease, +1)
}

func (l *Ledger) checkReserve(ts model.Timeslot) error {
	if ts.SlotsAvailable <= 0 {
		return ErrSlotUnavailable
	}
	if !ts.StartTime.After(l.now()) {
		return ErrPastTimeslot
	}
	return nil
}

func (l *Ledger) checkRelease(ts model.Timeslot) error {
	if ts.SlotsAvailable >= ts.Capacity {
		return ErrAlreadyAtCapacity
	}
	return nil
}

// apply runs the optimistic read/compare/write loop. The guard runs against
// the freshly read row on every attempt, so the bound checks hold even when
// the counter moved between retries.
func (l *Ledger) apply(ctx context.Context, timeslotID string, guard func(model.Timeslot) error, delta int) (int, error) {
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		ts, err := l.store.ReadTimeslot(ctx, timeslotID)
		if err != nil {
			return 0, err
		}
		if err := guard(ts); err != nil {
			return 0, err
		}

		next := ts.SlotsAvailable + delta
		affected, err := l.store.ConditionalUpdateSlotsAvailable(ctx, timeslotID, ts.SlotsAvailable, next)
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			return next, nil
		}

		// Lost the race: another writer changed the counter between our read
		// and write. Back off briefly and re-read.
		l.logger.Debug("slot update lost race",
			"timeslot_id", timeslotID,
			"attempt", attempt,
			"expected", ts.SlotsAvailable,
		)
		if attempt < l.maxAttempts {
			if err := sleep(ctx, l.backoff(attempt)); err != nil {
				return 0, err
			}
		}
	}

	l.logger.Warn("slot update retries exhausted", "timeslot_id", timeslotID, "attempts", l.maxAttempts)
	return 0, ErrConcurrencyExhausted
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
