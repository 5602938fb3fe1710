package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"dnsrouter/internal/adminapi/models"
)

// Health godoc
// @Summary Health check
// @Description Returns admin API liveness status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns runtime statistics: host CPU/memory, DNS query counters, cache occupancy, and upstream health
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
		DNS:           h.dnsStats(),
		Cache:         h.cacheStats(),
		Upstreams:     h.upstreamStats(),
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) dnsStats() models.DNSStatsResponse {
	comps := h.getComponents()
	if comps == nil || comps.Stats == nil {
		return models.DNSStatsResponse{}
	}
	s := comps.Stats.Snapshot()
	return models.DNSStatsResponse{
		QueriesTotal: s.QueriesTotal,
		QueriesUDP:   s.QueriesUDP,
		QueriesTCP:   s.QueriesTCP,
		ResponsesNX:  s.ResponsesNX,
		ResponsesErr: s.ResponsesErr,
		AvgLatencyMs: s.AvgLatencyMs,
	}
}

func (h *Handler) cacheStats() models.CacheStatsResponse {
	comps := h.getComponents()
	if comps == nil || comps.Cache == nil {
		return models.CacheStatsResponse{}
	}
	return models.CacheStatsResponse{Entries: comps.Cache.Len()}
}

func (h *Handler) upstreamStats() []models.UpstreamStatusResponse {
	comps := h.getComponents()
	if comps == nil || comps.Registry == nil {
		return nil
	}
	statuses := comps.Registry.Statuses()
	out := make([]models.UpstreamStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, models.UpstreamStatusResponse{
			Tag:        s.Tag,
			Healthy:    s.Healthy,
			Transports: s.Transports,
		})
	}
	return out
}
