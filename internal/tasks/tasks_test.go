package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep(ctx context.Context) int {
	s.calls.Add(1)
	return 1
}

func TestSessionSweepTask_SweepsUntilStopped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sweeper := &countingSweeper{}
	task := NewSessionSweepTask(sweeper, 10*time.Millisecond, logger)

	m := NewManager(logger)
	m.RegisterTask(task)
	m.StartScheduledTasks()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	m.StopAllTasks()
	after := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, sweeper.calls.Load())

	// Stopping twice is harmless
	task.Stop()
}

func TestSessionSweepTask_DisabledInterval(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sweeper := &countingSweeper{}
	task := NewSessionSweepTask(sweeper, 0, logger)

	task.Start()
	time.Sleep(20 * time.Millisecond)
	task.Stop()

	assert.Zero(t, sweeper.calls.Load())
}
