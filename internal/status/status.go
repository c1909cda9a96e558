// Package status serves a JSON snapshot of one listener: its live
// connections and the resource usage of the process hosting it.
package status

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/streamdouble/streamdouble/internal/conn"
)

type Report struct {
	Node        string        `json:"node"`
	Transport   string        `json:"transport"`
	Status      string        `json:"status"`
	Reported    int64         `json:"reported_at"`
	StartupTime int64         `json:"startup_time"`
	Process     ProcessUsage  `json:"process"`
	Connections []conn.Status `json:"connections"`
}

type ProcessUsage struct {
	PID        int     `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

type Reporter struct {
	transport string
	registry  *conn.Registry
	started   time.Time
	proc      *process.Process
}

func NewReporter(transport string, registry *conn.Registry) *Reporter {
	r := &Reporter{
		transport: transport,
		registry:  registry,
		started:   time.Now(),
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Printf("status: process stats unavailable: %v", err)
	} else {
		r.proc = p
	}
	return r
}

func (r *Reporter) Report() Report {
	return Report{
		Node:        nodeName(),
		Transport:   r.transport,
		Status:      "OK",
		Reported:    time.Now().Unix(),
		StartupTime: r.started.Unix(),
		Process:     r.usage(),
		Connections: r.registry.Snapshot(),
	}
}

// usage collects what it can; a field that cannot be read is left zero.
func (r *Reporter) usage() ProcessUsage {
	u := ProcessUsage{
		PID:        os.Getpid(),
		Goroutines: runtime.NumGoroutine(),
	}
	if r.proc == nil {
		return u
	}
	if mem, err := r.proc.MemoryInfo(); err == nil {
		u.RSSBytes = mem.RSS
	}
	if cpu, err := r.proc.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if n, err := r.proc.NumThreads(); err == nil {
		u.Threads = n
	}
	return u
}

func (r *Reporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Report()); err != nil {
		log.Printf("status: encode report: %v", err)
	}
}

func nodeName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
