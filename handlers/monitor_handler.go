package handlers

import (
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ridehub/ridehub/websocket"
	"github.com/shirou/gopsutil/process"
	"go.uber.org/zap"
)

var startedAt = time.Now()

type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}

type MonitorResponse struct {
	Status  string             `json:"status"`
	Uptime  string             `json:"uptime"`
	Hub     websocket.HubStats `json:"hub"`
	Process ProcessStats       `json:"process"`
}

func (h *Handler) GetPresence(c *fiber.Ctx) error {
	return c.JSON(websocket.PresencePayload{ActiveUsers: h.hub.Presence().ActiveUsers()})
}

// GetHubStats reports connection counts and the resource usage of this process.
func (h *Handler) GetHubStats(c *fiber.Ctx) error {
	stats := h.hub.Stats()
	status := "healthy"
	if stats.Connections == 0 {
		status = "idle"
	}
	return c.JSON(MonitorResponse{
		Status:  status,
		Uptime:  time.Since(startedAt).Round(time.Second).String(),
		Hub:     stats,
		Process: h.processStats(),
	})
}

func (h *Handler) processStats() ProcessStats {
	pid := int32(os.Getpid())
	out := ProcessStats{PID: pid, Goroutines: runtime.NumGoroutine()}

	p, err := process.NewProcess(pid)
	if err != nil {
		h.log.Debug("process lookup failed", zap.Error(err))
		return out
	}
	if mem, err := p.MemoryInfo(); err == nil {
		out.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		out.CPUPercent = cpu
	}
	return out
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
