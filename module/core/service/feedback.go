package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

// Feedback drives sound and vibration on the device. Calls are best effort.
type Feedback interface {
	Play(ctx context.Context, ev domain.AlarmEvent) error
	Stop(ctx context.Context) error
}

// Notifier receives every event the manager emits. Implementations must not
// block for long; the manager calls them from its event loop.
type Notifier interface {
	Notify(ctx context.Context, ev domain.AlarmEvent)
}

type NotifierFunc func(ctx context.Context, ev domain.AlarmEvent)

func (f NotifierFunc) Notify(ctx context.Context, ev domain.AlarmEvent) { f(ctx, ev) }

type NopFeedback struct{}

func (NopFeedback) Play(context.Context, domain.AlarmEvent) error { return nil }
func (NopFeedback) Stop(context.Context) error                   { return nil }

// RepeatingFeedback replays the wrapped Play every interval until Stop, so a
// device that missed the first command still rings.
type RepeatingFeedback struct {
	inner    Feedback
	interval time.Duration
	logger   logrus.FieldLogger
	timeout  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRepeatingFeedback(inner Feedback, interval time.Duration, logger logrus.FieldLogger) *RepeatingFeedback {
	return &RepeatingFeedback{
		inner:    inner,
		interval: interval,
		logger:   logger.WithField("component", "feedback"),
		timeout:  5 * time.Second,
	}
}

// Play returns the first attempt's error; repetition continues regardless.
func (f *RepeatingFeedback) Play(ctx context.Context, ev domain.AlarmEvent) error {
	f.halt()
	err := f.inner.Play(ctx, ev)
	if f.interval <= 0 {
		return err
	}

	repeatCtx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-repeatCtx.Done():
				return
			case <-ticker.C:
				callCtx, done := context.WithTimeout(repeatCtx, f.timeout)
				if err := f.inner.Play(callCtx, ev); err != nil && repeatCtx.Err() == nil {
					f.logger.WithError(err).Warn("repeat feedback failed")
				}
				done()
			}
		}
	}()
	return err
}

func (f *RepeatingFeedback) Stop(ctx context.Context) error {
	f.halt()
	return f.inner.Stop(ctx)
}

func (f *RepeatingFeedback) halt() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	f.wg.Wait()
}
