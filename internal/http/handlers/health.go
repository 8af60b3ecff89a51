package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"gorm.io/gorm"

	"github.com/jmylchreest/vidbrief/internal/pipeline"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version    string
	startTime  time.Time
	db         *gorm.DB
	scratchDir string
	runner     RunState
}

// RunState exposes the pipeline runner's activity to health checks.
type RunState interface {
	Running() bool
	LastReport() *pipeline.RunReport
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithScratchDir reports free space on the filesystem holding dir.
func (h *HealthHandler) WithScratchDir(dir string) *HealthHandler {
	h.scratchDir = dir
	return h
}

// WithRunner reports the active and most recent pipeline runs.
func (h *HealthHandler) WithRunner(runner RunState) *HealthHandler {
	h.runner = runner
	return h
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPU           CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Scratch       *ScratchInfo      `json:"scratch,omitempty"`
	RunInProgress bool              `json:"run_in_progress"`
	LastRun       *LastRunInfo      `json:"last_run,omitempty"`
	Checks        map[string]string `json:"checks"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system memory usage in megabytes.
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	AvailableMB float64 `json:"available_mb"`
}

// ScratchInfo holds free space where videos are transcoded.
type ScratchInfo struct {
	Path    string  `json:"path"`
	FreeMB  float64 `json:"free_mb"`
	UsedPct float64 `json:"used_percent"`
}

// LastRunInfo summarises the most recent run started by this process.
type LastRunInfo struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	FinishedAt time.Time `json:"finished_at"`
	Failed     int       `json:"items_failed"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health with host load, memory and scratch space",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service. The status is
// "degraded" when the database ping fails.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPU:           h.cpuInfo(ctx),
		Memory:        h.memoryInfo(ctx),
		Scratch:       h.scratchInfo(ctx),
		Checks:        map[string]string{"database": h.databaseStatus(ctx)},
	}
	if h.runner != nil {
		resp.RunInProgress = h.runner.Running()
		if last := h.runner.LastReport(); last != nil {
			resp.LastRun = &LastRunInfo{
				RunID:      last.RunID.String(),
				Status:     string(last.Status),
				FinishedAt: last.FinishedAt,
				Failed:     last.ItemsFailed,
			}
		}
	}
	if resp.Checks["database"] == "error" {
		resp.Status = "degraded"
	}
	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) cpuInfo(ctx context.Context) CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}
	avg, err := load.AvgWithContext(ctx)
	if err != nil || avg == nil {
		return info
	}
	info.Load1Min = avg.Load1
	info.Load5Min = avg.Load5
	info.Load15Min = avg.Load15
	if info.Cores > 0 {
		info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
	}
	return info
}

func (h *HealthHandler) memoryInfo(ctx context.Context) MemoryInfo {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil || vm == nil {
		return MemoryInfo{}
	}
	return MemoryInfo{
		TotalMB:     float64(vm.Total) / 1024 / 1024,
		UsedMB:      float64(vm.Used) / 1024 / 1024,
		AvailableMB: float64(vm.Available) / 1024 / 1024,
	}
}

func (h *HealthHandler) scratchInfo(ctx context.Context) *ScratchInfo {
	if h.scratchDir == "" {
		return nil
	}
	usage, err := disk.UsageWithContext(ctx, h.scratchDir)
	if err != nil || usage == nil {
		return nil
	}
	return &ScratchInfo{
		Path:    h.scratchDir,
		FreeMB:  float64(usage.Free) / 1024 / 1024,
		UsedPct: usage.UsedPercent,
	}
}

func (h *HealthHandler) databaseStatus(ctx context.Context) string {
	if h.db == nil {
		return "not_configured"
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return "error"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return "error"
	}
	return "ok"
}
