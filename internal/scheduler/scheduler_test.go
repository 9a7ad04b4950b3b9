package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestScheduler_AtRunsOnceAndDeregisters(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	var runs atomic.Int32
	id := s.At(time.Now().Add(10*time.Millisecond), func() { runs.Add(1) })
	assert.Equal(t, 1, s.Pending())

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Cancel(id), "a job that ran can no longer be cancelled")
}

func TestScheduler_AtInThePastRunsImmediately(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	done := make(chan struct{})
	s.At(time.Now().Add(-time.Hour), func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}

func TestScheduler_CancelAt(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var runs atomic.Int32
	id := s.At(time.Now().Add(50*time.Millisecond), func() { runs.Add(1) })
	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, runs.Load())
	assert.Zero(t, s.Pending())
}

func TestScheduler_Every(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real cron tick")
	}

	s := New(nil)
	s.Start()
	defer s.Stop()

	var runs atomic.Int32
	id, err := s.Every(time.Second, func() { runs.Add(1) })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	assert.True(t, s.Cancel(id))
	assert.Zero(t, s.Pending())
}

func TestScheduler_EveryRejectsNonPositiveInterval(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	_, err := s.Every(0, func() {})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestScheduler_StopIsIdempotentAndDropsPendingJobs(t *testing.T) {
	s := New(nil)
	s.Start()

	var runs atomic.Int32
	s.At(time.Now().Add(50*time.Millisecond), func() { runs.Add(1) })
	s.Stop()
	s.Stop()

	s.At(time.Now(), func() { runs.Add(1) })
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, runs.Load())
	assert.Zero(t, s.Pending())
}

func TestCronLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := cronLogger{zap.New(core).Sugar()}

	l.Info("skip", "entry", 1)
	l.Error(errors.New("boom"), "panic", "entry", 2)

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "skip", entries[0].Message)
	assert.Equal(t, "panic", entries[1].Message)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}
