// Package profiling exposes pprof and runtime memory figures over HTTP.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

const bytesPerMB = 1024 * 1024

// Register mounts the pprof handlers and a memory snapshot on g. The group
// is expected to be behind admin auth.
func Register(g *echo.Group) {
	g.GET("/pprof/", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	g.GET("/pprof/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	g.GET("/pprof/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	g.GET("/pprof/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	g.GET("/pprof/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		g.GET("/pprof/"+name, echo.WrapHandler(pprof.Handler(name)))
	}

	g.GET("/memory", func(c echo.Context) error {
		return c.JSON(http.StatusOK, GetMemoryStats())
	})
}

type MemoryStats struct {
	AllocMB      float64 `json:"alloc_mb"`
	TotalAllocMB float64 `json:"total_alloc_mb"`
	SysMB        float64 `json:"sys_mb"`
	NumGC        uint32  `json:"num_gc"`
	Goroutines   int     `json:"goroutines"`
	HeapObjects  uint64  `json:"heap_objects"`
	HeapInUseMB  float64 `json:"heap_in_use_mb"`
	Timestamp    string  `json:"timestamp"`
}

func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      float64(m.Alloc) / bytesPerMB,
		TotalAllocMB: float64(m.TotalAlloc) / bytesPerMB,
		SysMB:        float64(m.Sys) / bytesPerMB,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		HeapObjects:  m.HeapObjects,
		HeapInUseMB:  float64(m.HeapInuse) / bytesPerMB,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}
