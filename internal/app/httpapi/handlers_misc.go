package httpapi

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
)

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")
	price, stale, err := s.svcs.Prices.Price(r.Context(), currency)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setCacheControl(w, s.svcs.Prices.TTL(), s.svcs.Prices.StaleIfError())
	if stale {
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}
	writeJSON(w, http.StatusOK, map[string]float64{"price": price})
}

func (s *Server) handleTotalSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.svcs.Supply.CirculatingSupply(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	maxAge := s.cfg.SupplyCacheAge
	if maxAge <= 0 {
		maxAge = s.svcs.Supply.TTL()
	}
	setCacheControl(w, maxAge, 0)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(supply))
}

type adminStatsResponse struct {
	PID          int32   `json:"pid"`
	Goroutines   int     `json:"goroutines"`
	HeapAllocMB  float64 `json:"heapAllocMb"`
	RSSMB        float64 `json:"rssMb"`
	CPUPercent   float64 `json:"cpuPercent"`
	NumFDs       int32   `json:"numFds,omitempty"`
	UptimeSec    int64   `json:"uptimeSec"`
	GoVersion    string  `json:"goVersion"`
	NumCPU       int     `json:"numCpu"`
	CheckedAtUTC string  `json:"checkedAt"`
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminToken == "" || r.Header.Get("X-Admin-Token") != s.cfg.AdminToken {
		s.writeError(w, r, apperrors.Forbidden("admin access required"))
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	resp := adminStatsResponse{
		PID:          int32(os.Getpid()),
		Goroutines:   runtime.NumGoroutine(),
		HeapAllocMB:  float64(m.HeapAlloc) / (1 << 20),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		CheckedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}

	// Process level stats are best effort; the runtime figures above are
	// always available.
	if proc, err := process.NewProcessWithContext(r.Context(), resp.PID); err == nil {
		if mem, err := proc.MemoryInfoWithContext(r.Context()); err == nil && mem != nil {
			resp.RSSMB = float64(mem.RSS) / (1 << 20)
		}
		if cpu, err := proc.CPUPercentWithContext(r.Context()); err == nil {
			resp.CPUPercent = cpu
		}
		if fds, err := proc.NumFDsWithContext(r.Context()); err == nil {
			resp.NumFDs = fds
		}
		if created, err := proc.CreateTimeWithContext(r.Context()); err == nil && created > 0 {
			resp.UptimeSec = (time.Now().UnixMilli() - created) / 1000
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
