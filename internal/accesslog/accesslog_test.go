package accesslog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Append(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *memorySink) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// TestPurpose: Validates that sink failures are absorbed.
// Scope: Unit Test
// Expected: Record returns normally when the sink errors.
// Test Case ID: ALG-01
func TestRecorder_SwallowsSinkErrors(t *testing.T) {
	sink := new(mockSink)
	sink.On("Append", mock.Anything, mock.Anything).Return(errors.New("db down"))

	r := NewRecorder(sink, Config{})
	assert.NotPanics(t, func() {
		r.Record(context.Background(), Entry{DashboardID: 1, IP: "10.0.0.1"})
	})
	r.Wait()
	sink.AssertNumberOfCalls(t, "Append", 1)
}

func TestRecorder_NormalizesEntry(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, Entry{DashboardID: 7, TenantID: StringPtr("t-a"), UserID: StringPtr(""), IP: strings.Repeat("f", 60)})
	r.Wait()

	require.Len(t, sink.entries, 1)
	got := sink.entries[0]
	assert.Len(t, got.IP, 45)
	assert.False(t, got.AccessedAt.IsZero())
	assert.Equal(t, "t-a", *got.TenantID)
	assert.Nil(t, got.UserID)
}

func TestRecorder_ConcurrentAppends(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record(context.Background(), Entry{DashboardID: int64(i)})
		}(i)
	}
	wg.Wait()
	r.Wait()
	assert.Len(t, sink.entries, 50)

	var nilRecorder *Recorder
	assert.NotPanics(t, func() { nilRecorder.Record(context.Background(), Entry{}) })
}

// stuckSink blocks every Append until its context ends or it is released.
type stuckSink struct {
	release chan struct{}
	mu      sync.Mutex
	errs    []error
}

func (s *stuckSink) Append(ctx context.Context, _ Entry) error {
	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-s.release:
	}
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	return err
}

// TestPurpose: Validates that a stalled sink never holds up the caller.
// Scope: Unit Test
// Security: Availability of report delivery when the database hangs
// Expected: Record returns at once, the write is cut off by the write timeout, and entries past the backlog are dropped.
// Test Case ID: ALG-02
func TestRecorder_StalledSinkDoesNotBlock(t *testing.T) {
	sink := &stuckSink{release: make(chan struct{})}
	r := NewRecorder(sink, Config{WriteTimeout: 200 * time.Millisecond, MaxPending: 1})

	start := time.Now()
	r.Record(context.Background(), Entry{DashboardID: 1})
	r.Record(context.Background(), Entry{DashboardID: 2})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	r.Wait()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.errs, 1, "second entry exceeds the backlog and is dropped")
	assert.ErrorIs(t, sink.errs[0], context.DeadlineExceeded)
}
