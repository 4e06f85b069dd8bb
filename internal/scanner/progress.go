package scanner

import (
	"sync"
	"sync/atomic"
	"time"
)

// ProgressSnapshot is the state of the running or last scan.
type ProgressSnapshot struct {
	RunID      string    `json:"run_id,omitempty"`
	Running    bool      `json:"running"`
	Total      int64     `json:"total"`
	Done       int64     `json:"done"`
	Failed     int64     `json:"failed"`
	Bytes      int64     `json:"bytes"`
	RomsPerSec float64   `json:"roms_per_sec"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

// Progress tracks a scan while it runs.
type Progress struct {
	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	endedAt   time.Time
	running   bool

	total  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
	bytes  atomic.Int64
}

func (p *Progress) start(runID string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = runID
	p.startedAt = time.Now()
	p.endedAt = time.Time{}
	p.running = true
	p.total.Store(int64(total))
	p.done.Store(0)
	p.failed.Store(0)
	p.bytes.Store(0)
}

func (p *Progress) record(res Result) {
	p.done.Add(1)
	p.bytes.Add(res.FileSize)
	if res.Err != nil {
		p.failed.Add(1)
	}
}

func (p *Progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.endedAt = time.Now()
}

// Snapshot returns the current counters.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := ProgressSnapshot{
		RunID:     p.runID,
		Running:   p.running,
		Total:     p.total.Load(),
		Done:      p.done.Load(),
		Failed:    p.failed.Load(),
		Bytes:     p.bytes.Load(),
		StartedAt: p.startedAt,
	}

	end := p.endedAt
	if p.running {
		end = time.Now()
	}
	if elapsed := end.Sub(p.startedAt).Seconds(); !p.startedAt.IsZero() && elapsed > 0 {
		s.RomsPerSec = float64(s.Done) / elapsed
	}
	return s
}
