package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager handles the execution of scheduled tasks
type Manager struct {
	logger *logrus.Entry
	tasks  []Task
}

// Task represents a scheduled task that needs to be executed
type Task interface {
	Name() string
	Start()
	Stop()
}

// NewManager creates a new task manager
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		logger: logger.WithField("component", "tasks"),
		tasks:  make([]Task, 0),
	}
}

// RegisterTask registers a task with the manager
func (m *Manager) RegisterTask(task Task) {
	m.tasks = append(m.tasks, task)
}

// StartScheduledTasks starts all registered tasks
func (m *Manager) StartScheduledTasks() {
	for _, task := range m.tasks {
		task.Start()
		m.logger.WithField("task", task.Name()).Info("Started scheduled task")
	}
}

// StopAllTasks stops all running tasks
func (m *Manager) StopAllTasks() {
	for _, task := range m.tasks {
		task.Stop()
	}
	m.logger.Info("Stopped all scheduled tasks")
}

// Sweeper evicts sessions whose remote side has gone away
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// SessionSweepTask periodically probes connected sessions and evicts the dropped ones
type SessionSweepTask struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *logrus.Entry

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewSessionSweepTask creates a new sweep task. A non-positive interval disables it.
func NewSessionSweepTask(sweeper Sweeper, interval time.Duration, logger *logrus.Logger) *SessionSweepTask {
	return &SessionSweepTask{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.WithField("component", "session_sweep"),
	}
}

// Name identifies the task in logs
func (t *SessionSweepTask) Name() string { return "session_sweep" }

// Start begins the sweep loop
func (t *SessionSweepTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopChan != nil || t.interval <= 0 {
		return
	}

	t.stopChan = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stopChan, t.done)
}

func (t *SessionSweepTask) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-stop:
			return
		}
	}
}

func (t *SessionSweepTask) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), t.interval)
	defer cancel()

	if n := t.sweeper.Sweep(ctx); n > 0 {
		t.logger.WithField("evicted", n).Info("Evicted dropped sessions")
	}
}

// Stop terminates the sweep loop and waits for an in-flight sweep to finish
func (t *SessionSweepTask) Stop() {
	t.mu.Lock()
	stop, done := t.stopChan, t.done
	t.stopChan, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
