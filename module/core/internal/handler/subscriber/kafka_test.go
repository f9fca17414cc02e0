package subscriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/trip-alarm/module/core/domain"
)

type fakeReader struct {
	msgs     chan kafka.Message
	fetchErr error

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{msgs: make(chan kafka.Message, 16)}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetchErr != nil {
		return kafka.Message{}, r.fetchErr
	}
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func kafkaMessage(t *testing.T, offset int64, key string, msg LocationMessage) kafka.Message {
	return kafka.Message{Key: []byte(key), Value: payloadOf(t, msg), Offset: offset}
}

func TestKafkaSource_DeliversDeviceSamples(t *testing.T) {
	reader := newFakeReader()
	src := NewKafkaSource(func() MessageReader { return reader }, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)

	reader.msgs <- kafkaMessage(t, 1, "phone-2", LocationMessage{DeviceID: "phone-2", Latitude: 1, Timestamp: 1})
	reader.msgs <- kafkaMessage(t, 2, "phone-1", LocationMessage{DeviceID: "phone-1", Latitude: 12.9716, Longitude: 77.5946, Timestamp: 1715003456})

	u := receive(t, ch)
	require.NoError(t, u.Err)
	assert.Equal(t, 12.9716, u.Sample.Coordinate.Latitude)

	src.Stop()
	assert.True(t, reader.isClosed())
	_, ok := <-ch
	assert.False(t, ok)

	reader.mu.Lock()
	assert.Equal(t, []int64{1, 2}, reader.committed)
	reader.mu.Unlock()
}

func TestKafkaSource_FetchErrorIsTerminal(t *testing.T) {
	reader := newFakeReader()
	reader.fetchErr = errors.New("broker unreachable")
	src := NewKafkaSource(func() MessageReader { return reader }, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	u := receive(t, ch)
	assert.ErrorIs(t, u.Err, domain.ErrTrackingUnavailable)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestKafkaSource_TransientStatusKeepsStream(t *testing.T) {
	reader := newFakeReader()
	src := NewKafkaSource(func() MessageReader { return reader }, "phone-1", nil, testLogger())

	ch, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	reader.msgs <- kafkaMessage(t, 1, "phone-1", LocationMessage{DeviceID: "phone-1", Status: statusSignalLost})
	reader.msgs <- kafkaMessage(t, 2, "phone-1", LocationMessage{DeviceID: "phone-1", Latitude: 3, Timestamp: 1})

	assert.ErrorIs(t, receive(t, ch).Err, domain.ErrSignalLost)
	assert.Equal(t, 3.0, receive(t, ch).Sample.Coordinate.Latitude)
}

func TestKafkaSource_RestartOpensNewReader(t *testing.T) {
	var readers []*fakeReader
	src := NewKafkaSource(func() MessageReader {
		r := newFakeReader()
		readers = append(readers, r)
		return r
	}, "phone-1", nil, testLogger())

	first, err := src.Start(context.Background())
	require.NoError(t, err)
	second, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	_, ok := <-first
	assert.False(t, ok, "restart closes the previous stream")
	require.Len(t, readers, 2)
	assert.True(t, readers[0].isClosed())

	readers[1].msgs <- kafkaMessage(t, 1, "phone-1", LocationMessage{DeviceID: "phone-1", Latitude: 4, Timestamp: 1})
	assert.Equal(t, 4.0, receive(t, second).Sample.Coordinate.Latitude)
}

func TestKafkaSource_ContextCancel(t *testing.T) {
	reader := newFakeReader()
	src := NewKafkaSource(func() MessageReader { return reader }, "phone-1", nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := src.Start(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed on cancel")
	}
	src.Stop()
	assert.True(t, reader.isClosed())
}
