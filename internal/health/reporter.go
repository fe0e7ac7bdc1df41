package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Report is the body of the health endpoint.
type Report struct {
	Status        Status       `json:"status"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Sessions      int          `json:"sessions"`
	Goroutines    int          `json:"goroutines"`
	Process       ProcessStats `json:"process"`
	Host          HostStats    `json:"host"`
	Dependencies  []Dependency `json:"dependencies"`
}

type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

type HostStats struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

// Reporter assembles health reports for the running process.
type Reporter struct {
	tracker  *Tracker
	sessions func() int
	proc     *process.Process
	started  time.Time
	log      *zap.Logger
}

func NewReporter(tracker *Tracker, sessions func() int, log *zap.Logger) *Reporter {
	r := &Reporter{
		tracker:  tracker,
		sessions: sessions,
		started:  time.Now(),
		log:      log,
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process stats unavailable", zap.Error(err))
	} else {
		r.proc = proc
	}
	return r
}

// Report never fails; stats that cannot be read are left zero.
func (r *Reporter) Report(ctx context.Context) Report {
	deps, status := r.tracker.Snapshot()
	rep := Report{
		Status:        status,
		UptimeSeconds: time.Since(r.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Dependencies:  deps,
	}
	if r.sessions != nil {
		rep.Sessions = r.sessions()
	}

	if r.proc != nil {
		if m, err := r.proc.MemoryInfoWithContext(ctx); err == nil {
			rep.Process.RSSBytes = m.RSS
		}
		if pct, err := r.proc.CPUPercentWithContext(ctx); err == nil {
			rep.Process.CPUPercent = pct
		}
		if n, err := r.proc.NumThreadsWithContext(ctx); err == nil {
			rep.Process.Threads = n
		}
	}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		rep.Host.CPUPercent = pcts[0]
	} else if err != nil {
		r.log.Debug("host cpu stats unavailable", zap.Error(err))
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		rep.Host.MemUsedPercent = vm.UsedPercent
	}
	return rep
}
