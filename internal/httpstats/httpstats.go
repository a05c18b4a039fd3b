package httpstats

import (
	"encoding/json"
	"runtime/debug"
	"time"

	"durakv/internal/logger"
	"durakv/internal/metrics"
	"durakv/internal/store"

	"github.com/valyala/fasthttp"
)

// Router serves the process's read-only introspection surface: a liveness
// probe and a metrics snapshot. It carries no authentication, matching the
// wire protocol it sits beside.
type Router struct {
	St *store.Store
}

func (router *Router) GetFastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		router.handleRequest(ctx)
	}
}

func (router *Router) handleRequest(ctx *fasthttp.RequestCtx) {
	startTime := time.Now()
	defer func() {
		recoverPanic(ctx)
		logger.LogAccessEvent("%s %s %s %v", string(ctx.Method()), string(ctx.Path()), ctx.RemoteAddr(), time.Since(startTime))
	}()

	switch string(ctx.Path()) {
	case "/healthz":
		router.handleHealthz(ctx)
	case "/stats":
		router.handleStats(ctx)
	default:
		ctx.Error("Not Found", fasthttp.StatusNotFound)
	}
}

func (router *Router) handleHealthz(ctx *fasthttp.RequestCtx) {
	if string(ctx.Method()) != "GET" {
		ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("ok")
}

type statsPayload struct {
	Capacity      int     `json:"capacity"`
	CurrentSize   int     `json:"current_size"`
	LoadFactor    float64 `json:"load_factor"`
	BloomBits     uint    `json:"bloom_bits"`
	BloomHashes   uint    `json:"bloom_hashes"`
	SetOps        int64   `json:"set_ops"`
	GetOps        int64   `json:"get_ops"`
	DelOps        int64   `json:"del_ops"`
	SnapshotCount int64   `json:"snapshot_count"`
	SysMemAlloc   uint64  `json:"sys_mem_alloc"`
	Goroutines    int     `json:"goroutines"`
}

func (router *Router) handleStats(ctx *fasthttp.RequestCtx) {
	if string(ctx.Method()) != "GET" {
		ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	st := router.St.Stats()
	payload := statsPayload{
		Capacity:      st.Capacity,
		CurrentSize:   st.CurrentSize,
		LoadFactor:    st.LoadFactor,
		BloomBits:     st.BloomBits,
		BloomHashes:   st.BloomHashes,
		SetOps:        metrics.Global.SetOps,
		GetOps:        metrics.Global.GetOps,
		DelOps:        metrics.Global.DelOps,
		SnapshotCount: metrics.Global.SnapshotCount,
		SysMemAlloc:   metrics.Global.SysMemAlloc,
		Goroutines:    metrics.Global.Goroutines,
	}

	ctx.SetContentType("application/json")
	json.NewEncoder(ctx).Encode(payload)
}

func recoverPanic(ctx *fasthttp.RequestCtx) {
	if r := recover(); r != nil {
		logger.LogErrorEvent("PANIC: %v\n%s", r, debug.Stack())
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
	}
}
