// Package tracking defines the push-based location source the alarm core
// consumes, plus an in-memory source for simulation and tests.
package tracking

import (
	"context"
	"sync"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

// Update carries either a sample or an error. A non-transient error is the
// last update on a stream.
type Update struct {
	Sample domain.LocationSample
	Err    error
}

// Source is a device location provider. Start begins emitting on the
// returned channel; the channel is closed when the source stops, when ctx is
// done, or after a terminal error. Stop is idempotent.
type Source interface {
	Start(ctx context.Context) (<-chan Update, error)
	Stop()
}

// Stream is the sending half shared by Source implementations. Send never
// races with Close.
type Stream struct {
	mu     sync.RWMutex
	out    chan Update
	stop   chan struct{}
	once   sync.Once
	closed bool
}

func NewStream(buffer int) *Stream {
	return &Stream{
		out:  make(chan Update, buffer),
		stop: make(chan struct{}),
	}
}

func (s *Stream) C() <-chan Update {
	return s.out
}

// Send blocks until the update is delivered or the stream closes. It
// reports whether the update was delivered.
func (s *Stream) Send(u Update) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- u:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()
	})
}

// Done is closed once Close has been called.
func (s *Stream) Done() <-chan struct{} {
	return s.stop
}

// ChannelSource is fed by Push and Fail. StartErr, when set, is returned by
// the next Start to simulate a permission prompt being declined.
type ChannelSource struct {
	mu       sync.Mutex
	stream   *Stream
	starts   int
	StartErr error
}

func NewChannelSource() *ChannelSource {
	return &ChannelSource{}
}

func (s *ChannelSource) Start(ctx context.Context) (<-chan Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StartErr != nil {
		err := s.StartErr
		s.StartErr = nil
		return nil, err
	}
	if s.stream != nil {
		s.stream.Close()
	}
	st := NewStream(16)
	s.stream = st
	s.starts++

	go func() {
		select {
		case <-ctx.Done():
			st.Close()
		case <-st.Done():
		}
	}()
	return st.C(), nil
}

func (s *ChannelSource) Stop() {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()
	if st != nil {
		st.Close()
	}
}

// Push delivers a sample, reporting false when the source is not started.
func (s *ChannelSource) Push(sample domain.LocationSample) bool {
	st := s.current()
	if st == nil {
		return false
	}
	return st.Send(Update{Sample: sample})
}

// Fail delivers err. Transient errors keep the stream open.
func (s *ChannelSource) Fail(err error) bool {
	st := s.current()
	if st == nil {
		return false
	}
	ok := st.Send(Update{Err: err})
	if !domain.IsTransient(err) {
		s.Stop()
	}
	return ok
}

func (s *ChannelSource) Running() bool {
	return s.current() != nil
}

func (s *ChannelSource) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *ChannelSource) current() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}
