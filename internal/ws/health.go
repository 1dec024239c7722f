package ws

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

type processInfo struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}

type healthResponse struct {
	Status      string       `json:"status"`
	Connections int          `json:"connections"`
	Named       int          `json:"named"`
	Uptime      string       `json:"uptime"`
	Process     *processInfo `json:"process,omitempty"`
}

type statsFunc func() (*processInfo, error)

func processStats() (*processInfo, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return nil, err
	}
	return &processInfo{
		PID:        p.Pid,
		RSSBytes:   mem.RSS,
		CPUPercent: cpu,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}
