package sandbox

import (
	"encoding/json"
	"io"
)

// dockerStats mirrors the subset of the Docker Engine API's stats payload
// this driver needs: memory usage in bytes. Decoded manually (rather than
// via the full container.StatsResponse type) to stay tolerant of API
// version drift in a field the driver only reads, never writes.
type dockerStats struct {
	MemoryStats struct {
		Usage uint64 `json:"usage"`
	} `json:"memory_stats"`
}

// parseMemoryUsageBytes extracts the current memory usage in bytes from one
// ContainerStatsOneShot response body. Returns ok=false if the payload
// can't be parsed, in which case the caller treats memory as unobservable
// for this sample (spec §4.B: memory_usage_kb=0 rather than erroring).
func parseMemoryUsageBytes(r io.Reader) (uint64, bool) {
	var s dockerStats
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return 0, false
	}
	return s.MemoryStats.Usage, true
}
