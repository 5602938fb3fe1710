package models

import "time"

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// DNSStatsResponse contains DNS query statistics since startup.
type DNSStatsResponse struct {
	QueriesTotal uint64  `json:"queries_total"`
	QueriesUDP   uint64  `json:"queries_udp"`
	QueriesTCP   uint64  `json:"queries_tcp"`
	ResponsesNX  uint64  `json:"responses_nxdomain"`
	ResponsesErr uint64  `json:"responses_error"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// CacheStatsResponse reports the response cache's current occupancy.
type CacheStatsResponse struct {
	Entries int `json:"entries"`
}

// UpstreamStatusResponse is a point-in-time health snapshot for one
// registered upstream tag.
type UpstreamStatusResponse struct {
	Tag        string `json:"tag"`
	Healthy    bool   `json:"healthy"`
	Transports int    `json:"transports"`
}

// ServerStatsResponse contains router runtime statistics.
type ServerStatsResponse struct {
	Uptime        string                   `json:"uptime"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	StartTime     time.Time                `json:"start_time"`
	CPU           CPUStats                 `json:"cpu"`
	Memory        MemoryStats              `json:"memory"`
	DNS           DNSStatsResponse         `json:"dns"`
	Cache         CacheStatsResponse       `json:"cache"`
	Upstreams     []UpstreamStatusResponse `json:"upstreams"`
}
