// Package jobmgr runs fire-and-forget background jobs with status reporting
// and tracks them so callers can wait for in-flight work on shutdown.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(msg string) {
//	    log.Println("[JOB]", msg)
//	})
//
//	jm.Go("mood-save", func(ctx context.Context) error {
//	    return store.SaveMoodChange(ctx, "sad", 1200)
//	})
//
//	// on shutdown
//	jm.Wait()
//
// Job errors never reach the caller of Go; they are delivered to the reporter.
package jobmgr

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:mood-save#3
//	error:mood-save#3:database is locked
//	done:mood-save#3
type StatusReporter func(string)

// LogReporter is the default reporter. Only failures are logged.
func LogReporter(msg string) {
	if strings.HasPrefix(msg, "error:") {
		log.Printf("[JOB] %s", msg)
	}
}

// Manager starts and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	jobs     map[string]context.CancelFunc
	seq      uint64
	wg       sync.WaitGroup
	Reporter StatusReporter
}

// NewManager creates a Manager. A nil reporter logs failures via LogReporter.
func NewManager(reporter StatusReporter) *Manager {
	if reporter == nil {
		reporter = LogReporter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]context.CancelFunc),
		Reporter: reporter,
	}
}

// Go runs runner in its own goroutine and returns the job ID immediately.
// Several jobs may share a name; each gets a "#n" suffix.
func (m *Manager) Go(name string, runner func(ctx context.Context) error) string {
	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("%s#%d", name, m.seq)
	ctx, cancel := context.WithCancel(m.ctx)
	m.jobs[id] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.report("running:" + id)

		if err := runner(ctx); err != nil {
			m.report("error:" + id + ":" + err.Error())
		} else {
			m.report("done:" + id)
		}

		m.mu.Lock()
		delete(m.jobs, id)
		m.mu.Unlock()
	}()

	return id
}

// Wait blocks until every job started so far has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels the context of all running jobs and waits for them.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

// List returns the IDs of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Status returns a human-readable summary of active jobs.
// Example:
//
//	"Running jobs: mood-save#4, mood-save#5"
//
// If none are running: "No jobs are running."
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
