// Package heartbeat watches liveness timestamps and escalates when a
// watched id stops beating: first to a recovery callback, then to
// process termination. It is independent of the recording pipeline and
// composes with it through Beat.
package heartbeat

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/timeseam/timeseam/internal/clock"
	"github.com/timeseam/timeseam/internal/pkg/guard"
)

// Options configures a Monitor.
type Options struct {
	// Name identifies the monitor in log output.
	Name string
	// Timeout is the maximum allowed age of an id's last beat.
	Timeout time.Duration
	// Interval is the check period; it defaults to one second and must
	// not exceed Timeout.
	Interval time.Duration
	// OnBeat, when set, runs once at watcher start and then once per
	// interval. Owners use it to feed their own upstream heartbeats.
	OnBeat func()
	// OnFail runs when an id times out. Returning true means the id was
	// recovered: it is dropped and watching continues until its next
	// beat. Returning false escalates to Terminate.
	OnFail func(id string) bool
	// Terminate runs on unrecovered failure. The default signals the
	// owning process with SIGTERM, then SIGKILL.
	Terminate func()
}

// Monitor tracks last-beat timestamps per id.
type Monitor struct {
	opts   Options
	stamps *guard.Guard[map[string]float64]
	done   chan struct{}
	wg     sync.WaitGroup
}

// New validates opts and creates a stopped Monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("heartbeat: timeout %v must be positive", opts.Timeout)
	}
	if opts.Interval == 0 {
		opts.Interval = 1 * time.Second
	}
	if opts.Interval > opts.Timeout {
		return nil, fmt.Errorf("heartbeat: timeout %v smaller than interval %v",
			opts.Timeout, opts.Interval)
	}
	if opts.Terminate == nil {
		opts.Terminate = selfTerminate
	}
	return &Monitor{
		opts:   opts,
		stamps: guard.New(make(map[string]float64)),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the watcher goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.watch()
}

// Stop ends the watcher and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.done)
	m.wg.Wait()
}

// Beat records a liveness timestamp for id. A zero or negative ts means
// "now"; an empty id is folded to "default".
func (m *Monitor) Beat(id string, ts float64) {
	if ts <= 0 {
		ts = clock.Timestamp()
	}
	if id == "" {
		id = "default"
	}
	m.stamps.With(func(stamps *map[string]float64) {
		(*stamps)[id] = ts
	})
}

// Wait blocks until every id has beaten at least once or timeout
// passes. It returns the ids still missing, or nil when all arrived.
// A zero timeout waits forever.
func (m *Monitor) Wait(ids []string, timeout time.Duration) []string {
	if len(ids) == 0 {
		ids = []string{"default"}
	}
	deadline := time.Now().Add(timeout)
	for {
		var missing []string
		m.stamps.With(func(stamps *map[string]float64) {
			for _, id := range ids {
				if _, ok := (*stamps)[id]; !ok {
					missing = append(missing, id)
				}
			}
		})
		if len(missing) == 0 {
			return nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return missing
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (m *Monitor) watch() {
	defer m.wg.Done()

	// initial beat without delay
	if m.opts.OnBeat != nil {
		m.opts.OnBeat()
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if m.opts.OnBeat != nil {
				m.opts.OnBeat()
			}
			if !m.check() {
				return
			}
		}
	}
}

// check scans for expired ids. It returns false when the monitor
// escalated to Terminate.
func (m *Monitor) check() bool {
	now := clock.Timestamp()
	limit := m.opts.Timeout.Seconds()

	var expired []string
	m.stamps.With(func(stamps *map[string]float64) {
		for id, last := range *stamps {
			if now-last > limit {
				expired = append(expired, id)
			}
		}
	})
	sort.Strings(expired)

	for _, id := range expired {
		log.Printf("heartbeat %s: %s timed out", m.opts.Name, id)

		if m.opts.OnFail != nil && m.opts.OnFail(id) {
			// recovered: forget the id and wait for its next beat
			m.stamps.With(func(stamps *map[string]float64) {
				delete(*stamps, id)
			})
			log.Printf("heartbeat %s: %s recovered", m.opts.Name, id)
			continue
		}

		log.Printf("heartbeat %s: %s failed, terminating", m.opts.Name, id)
		m.opts.Terminate()
		return false
	}
	return true
}

func selfTerminate() {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return
	}
	p.Signal(syscall.SIGTERM)
	time.Sleep(1 * time.Second)
	p.Signal(syscall.SIGKILL)
}
