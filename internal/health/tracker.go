package health

import (
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusFailed:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Dependency is the health of one downstream collaborator.
type Dependency struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Failures  int       `json:"consecutive_failures"`
	LastError string    `json:"last_error,omitempty"`
	LastFail  time.Time `json:"last_failure,omitempty"`
}

type dependencyState struct {
	failures int
	lastErr  string
	lastFail time.Time
}

// Tracker counts consecutive failures per dependency. A dependency with any
// failure since its last success is degraded; at threshold it is failed.
type Tracker struct {
	threshold int

	mu   sync.Mutex
	deps map[string]*dependencyState
}

func NewTracker(threshold int) *Tracker {
	if threshold < 1 {
		threshold = 1
	}
	return &Tracker{threshold: threshold, deps: make(map[string]*dependencyState)}
}

// Register makes name visible in snapshots before its first outcome.
func (t *Tracker) Register(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range names {
		t.stateLocked(name)
	}
}

func (t *Tracker) RecordSuccess(name string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateLocked(name)
	st.failures = 0
	st.lastErr = ""
}

func (t *Tracker) RecordFailure(name string, err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateLocked(name)
	st.failures++
	st.lastFail = time.Now()
	if err != nil {
		st.lastErr = err.Error()
	}
}

// stateLocked returns the entry for name, creating it. Caller must hold t.mu.
func (t *Tracker) stateLocked(name string) *dependencyState {
	st, ok := t.deps[name]
	if !ok {
		st = &dependencyState{}
		t.deps[name] = st
	}
	return st
}

func (t *Tracker) statusLocked(st *dependencyState) Status {
	switch {
	case st.failures >= t.threshold:
		return StatusFailed
	case st.failures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Snapshot returns every dependency sorted by name, plus the worst status
// among them.
func (t *Tracker) Snapshot() ([]Dependency, Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	overall := StatusHealthy
	deps := make([]Dependency, 0, len(t.deps))
	for name, st := range t.deps {
		d := Dependency{
			Name:      name,
			Status:    t.statusLocked(st),
			Failures:  st.failures,
			LastError: st.lastErr,
			LastFail:  st.lastFail,
		}
		if d.Status.rank() > overall.rank() {
			overall = d.Status
		}
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps, overall
}
