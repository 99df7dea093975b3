// Package router implements the gateway's request dispatch: gate
// pipeline, tool-endpoint routing, the license subsurface, and the
// uniform JSON response envelope, per spec section 4.6.
//
// Router implements reactor.Handler directly: TryExtract incrementally
// parses HTTP off the connection's byte buffer and, once one complete
// request is available, returns a work closure that runs the full gate
// pipeline and dispatch synchronously on the worker-pool goroutine that
// calls it.
//
// Author: momentics <momentics@gmail.com>
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/momentics/hioload-gateway/internal/auth"
	"github.com/momentics/hioload-gateway/internal/connfsm"
	"github.com/momentics/hioload-gateway/internal/engine"
	"github.com/momentics/hioload-gateway/internal/gwerr"
	"github.com/momentics/hioload-gateway/internal/httpproto"
	"github.com/momentics/hioload-gateway/internal/ipfilter"
	"github.com/momentics/hioload-gateway/internal/license"
	"github.com/momentics/hioload-gateway/internal/ratelimit"
	"github.com/momentics/hioload-gateway/internal/statscore"
	"github.com/momentics/hioload-gateway/internal/toolregistry"
	"github.com/momentics/hioload-gateway/internal/wsproto"
)

// WSUpgradeHook is invoked once a connection has successfully upgraded;
// ownership of subsequent bytes passes to the caller (WebSocketHub).
type WSUpgradeHook func(conn *connfsm.Conn)

// VideoRouteHook handles GET /video/... requests, returning true if it
// fully handled the request (it owns the connection afterward for
// streaming) or false to let Router respond normally.
type VideoRouteHook func(conn *connfsm.Conn, req *httpproto.Request) bool

// CORSConfig controls the Access-Control-Allow-* headers applied
// uniformly to every response and the OPTIONS preflight short-circuit.
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSeconds  int
}

// exemptPaths never go through the auth gate, matching the spec's
// whitelist of paths reachable before login/authentication.
var exemptPaths = map[string]bool{
	"/health": true,
	"/":       true,
}

// Router dispatches parsed HTTP requests through the gate pipeline to
// tool handlers, the license subsurface, or a WebSocket upgrade.
type Router struct {
	logger *slog.Logger

	ipFilter  *ipfilter.Filter
	rateLimit *ratelimit.Limiter
	authn     *auth.Authenticator

	tools   *toolregistry.Registry
	eng     *engine.Channel
	lic     *license.Manager
	stats   *statscore.Core

	maxBodySize int
	cors        CORSConfig

	onWSUpgrade WSUpgradeHook
	onVideo     VideoRouteHook

	requestTimeout time.Duration
	logRequests    bool
}

// Config bundles Router's collaborators.
type Config struct {
	Logger         *slog.Logger
	IPFilter       *ipfilter.Filter
	RateLimit      *ratelimit.Limiter
	Auth           *auth.Authenticator
	Tools          *toolregistry.Registry
	Engine         *engine.Channel
	License        *license.Manager
	Stats          *statscore.Core
	MaxBodySize    int
	CORS           CORSConfig
	RequestTimeout time.Duration
	LogRequests    bool
	OnWSUpgrade    WSUpgradeHook
	OnVideo        VideoRouteHook
}

// New constructs a Router from cfg.
func New(cfg Config) *Router {
	return &Router{
		logger:         cfg.Logger,
		ipFilter:       cfg.IPFilter,
		rateLimit:      cfg.RateLimit,
		authn:          cfg.Auth,
		tools:          cfg.Tools,
		eng:            cfg.Engine,
		lic:            cfg.License,
		stats:          cfg.Stats,
		maxBodySize:    cfg.MaxBodySize,
		cors:           cfg.CORS,
		onWSUpgrade:    cfg.OnWSUpgrade,
		onVideo:        cfg.OnVideo,
		requestTimeout: cfg.RequestTimeout,
		logRequests:    cfg.LogRequests,
	}
}

// TryExtract implements reactor.Handler.
func (rt *Router) TryExtract(conn *connfsm.Conn) (func(), bool, error) {
	buf := conn.ReadBuffer()
	req, status := httpproto.Parse(buf, rt.maxBodySize)
	switch status {
	case httpproto.StatusNeedMore:
		return nil, false, nil
	case httpproto.StatusMalformed:
		conn.ConsumeRead(len(buf))
		return func() {
			rt.writeError(conn, gwerr.New(gwerr.CodeBadRequest, "malformed request"))
		}, true, nil
	case httpproto.StatusTooLarge:
		conn.ConsumeRead(len(buf))
		return func() {
			rt.writeError(conn, gwerr.New(gwerr.CodePayloadTooLarge, "request too large"))
		}, true, nil
	}

	conn.ConsumeRead(req.ConsumedBytes)
	return func() { rt.handle(conn, req) }, true, nil
}

func (rt *Router) handle(conn *connfsm.Conn, req *httpproto.Request) {
	start := time.Now()
	defer func() {
		if rt.stats != nil {
			rt.stats.IncRequest(time.Since(start))
		}
		if rt.logRequests {
			rt.logger.Info("request", slog.String("method", req.Method), slog.String("path", req.Path),
				slog.Duration("latency", time.Since(start)))
		}
	}()

	if strings.EqualFold(req.Method, "OPTIONS") {
		rt.handlePreflight(conn)
		return
	}

	if rt.ipFilter != nil && !rt.ipFilter.Allowed(hostOnly(conn.RemoteAddr)) {
		rt.writeError(conn, gwerr.New(gwerr.CodeForbidden, "ip not allowed"))
		return
	}
	if rt.rateLimit != nil {
		res := rt.rateLimit.Check(hostOnly(conn.RemoteAddr))
		if !res.Allowed {
			seconds := int(res.RetryAfter.Seconds())
			rt.writeError(conn, gwerr.New(gwerr.CodeRateLimited, "rate limit exceeded").
				With("retry_after", seconds).
				With("limit", res.Limit).
				With("remaining", res.Remaining))
			return
		}
	}
	if rt.authn != nil && !exemptPaths[req.Path] {
		if _, err := rt.authn.Verify(req.Header("Authorization")); err != nil {
			rt.writeError(conn, gwerr.New(gwerr.CodeAuthRequired, "authentication required"))
			return
		}
	}

	if isWebSocketUpgrade(req) {
		rt.handleWSUpgrade(conn, req)
		return
	}
	if strings.HasPrefix(req.Path, "/video/") && rt.onVideo != nil {
		if rt.onVideo(conn, req) {
			return
		}
	}

	switch {
	case req.Path == "/health":
		rt.writeJSON(conn, 200, map[string]any{"success": true, "status": "ok"})
	case req.Path == "/stats":
		rt.handleStats(conn)
	case req.Path == "/tools":
		rt.handleToolList(conn)
	case strings.HasPrefix(req.Path, "/tools/"):
		rt.handleToolDoc(conn, strings.TrimPrefix(req.Path, "/tools/"))
	case strings.HasPrefix(req.Path, "/execute/"):
		rt.handleExecute(conn, req, strings.TrimPrefix(req.Path, "/execute/"))
	case req.Path == "/command":
		rt.handleCommand(conn, req)
	default:
		rt.writeError(conn, gwerr.New(gwerr.CodeNotFound, "no such route"))
	}
}

func isWebSocketUpgrade(req *httpproto.Request) bool {
	return req.Path == "/ws" &&
		httpproto.HeaderContainsToken(req.Header("Connection"), "upgrade") &&
		strings.EqualFold(req.Header("Upgrade"), "websocket")
}

func (rt *Router) handleWSUpgrade(conn *connfsm.Conn, req *httpproto.Request) {
	accept, err := wsproto.ValidateUpgrade(req.Headers)
	if err != nil {
		rt.writeError(conn, gwerr.New(gwerr.CodeBadRequest, err.Error()))
		return
	}
	conn.QueueWrite(wsproto.UpgradeResponse(accept))
	conn.Kind = connfsm.KindWebSocket
	if rt.onWSUpgrade != nil {
		rt.onWSUpgrade(conn)
	}
}

func (rt *Router) handleStats(conn *connfsm.Conn) {
	if rt.stats == nil {
		rt.writeJSON(conn, 200, map[string]any{"success": true})
		return
	}
	snap := rt.stats.Snapshot()
	rt.writeJSON(conn, 200, map[string]any{
		"success":           true,
		"total_requests":    snap.TotalRequests,
		"total_errors":      snap.TotalErrors,
		"active_conns":      snap.ActiveConns,
		"min_latency_ns":    snap.MinLatencyNanos,
		"max_latency_ns":    snap.MaxLatencyNanos,
		"avg_latency_ns":    snap.AvgLatencyNanos,
		"requests_per_sec":  snap.RequestsPerSec,
		"uptime_seconds":    snap.Uptime.Seconds(),
		"engine_state":      rt.engineStateString(),
		"engine_pending":    rt.enginePendingCount(),
	})
}

func (rt *Router) engineStateString() string {
	if rt.eng == nil {
		return "unknown"
	}
	return rt.eng.State().String()
}

func (rt *Router) enginePendingCount() int {
	if rt.eng == nil {
		return 0
	}
	return rt.eng.PendingCount()
}

func (rt *Router) handleToolList(conn *connfsm.Conn) {
	type toolDesc struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var tools []toolDesc
	for _, t := range rt.tools.All() {
		tools = append(tools, toolDesc{Name: t.Name, Description: t.Description})
	}
	rt.writeJSON(conn, 200, map[string]any{"success": true, "tools": tools})
}

// handleToolDoc implements GET /tools/{name}, the tool-documentation
// endpoint from the HTTP surface table.
func (rt *Router) handleToolDoc(conn *connfsm.Conn, name string) {
	tool := rt.tools.Lookup(name)
	if tool == nil {
		rt.writeError(conn, gwerr.New(gwerr.CodeNotFound, "unknown tool"))
		return
	}
	rt.writeJSON(conn, 200, map[string]any{
		"success":     true,
		"name":        tool.Name,
		"description": tool.Description,
		"fields":      fieldDescs(tool.Fields),
	})
}

func fieldDescs(fields []toolregistry.Field) []map[string]any {
	out := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]any{"name": f.Name, "kind": string(f.Kind), "required": f.Required})
	}
	return out
}

// handleExecute implements POST /execute/{name}: license-subsurface
// tools resolve against LicenseManager directly, everything else
// forwards to EngineChannel, per spec section 4.6.
func (rt *Router) handleExecute(conn *connfsm.Conn, req *httpproto.Request, name string) {
	tool := rt.tools.Lookup(name)
	if tool == nil {
		rt.writeError(conn, gwerr.New(gwerr.CodeNotFound, "unknown tool"))
		return
	}

	var payload map[string]any
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			rt.writeError(conn, gwerr.New(gwerr.CodeBadRequest, "invalid JSON body"))
			return
		}
	} else {
		payload = map[string]any{}
	}

	if err := tool.Validate(payload); err != nil {
		rt.writeGwerr(conn, err)
		return
	}

	if tool.LicenseSubsurface {
		rt.executeLicenseTool(conn, tool, payload)
		return
	}

	if rt.eng == nil {
		rt.writeError(conn, gwerr.New(gwerr.CodeNotReady, "engine unavailable"))
		return
	}
	params, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), rt.requestTimeout)
	defer cancel()

	result, err := rt.eng.Call(ctx, tool.Name, params)
	rt.respondEngineResult(conn, result, err)
}

// executeLicenseTool resolves the five license-subsurface tool names
// against LicenseManager instead of EngineChannel; add_license and
// remove_license restart the engine on success.
func (rt *Router) executeLicenseTool(conn *connfsm.Conn, tool *toolregistry.Tool, payload map[string]any) {
	if rt.lic == nil {
		rt.writeError(conn, gwerr.New(gwerr.CodeNotReady, "license subsystem unavailable"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.requestTimeout)
	defer cancel()

	switch tool.Name {
	case "get_license_status", "get_license_info":
		status, err := rt.lic.Check(ctx)
		if err != nil {
			rt.writeError(conn, gwerr.Newf(gwerr.CodeLicenseError, "license check failed: %v", err))
			return
		}
		rt.writeJSON(conn, 200, map[string]any{"success": true, "result": status})
	case "get_hardware_fingerprint":
		status, err := rt.lic.Check(ctx)
		if err != nil {
			rt.writeError(conn, gwerr.Newf(gwerr.CodeLicenseError, "license check failed: %v", err))
			return
		}
		rt.writeJSON(conn, 200, map[string]any{
			"success": true,
			"result":  map[string]any{"hardware_fingerprint": status.HardwareFingerprint},
		})
	case "add_license":
		key, _ := payload["key"].(string)
		status, err := rt.lic.Activate(ctx, key)
		if err != nil {
			rt.writeError(conn, gwerr.Newf(gwerr.CodeLicenseError, "license add failed: %v", err))
			return
		}
		rt.restartEngine()
		rt.writeJSON(conn, 200, map[string]any{
			"success": true,
			"result":  status,
			"message": fmt.Sprintf("License added (%s). Browser restarted.", status.Status),
		})
	case "remove_license":
		status, err := rt.lic.Remove(ctx)
		if err != nil {
			rt.writeError(conn, gwerr.Newf(gwerr.CodeLicenseError, "license remove failed: %v", err))
			return
		}
		rt.restartEngine()
		rt.writeJSON(conn, 200, map[string]any{
			"success": true,
			"result":  status,
			"message": "License removed. Browser restarted.",
		})
	}
}

func (rt *Router) restartEngine() {
	if rt.eng == nil {
		return
	}
	restartCtx, cancel := context.WithTimeout(context.Background(), rt.requestTimeout)
	defer cancel()
	_ = rt.eng.Restart(restartCtx)
}

// respondEngineResult translates an EngineChannel outcome into the
// canonical response shape: engine-reported failures (success:false
// from the engine itself) surface as HTTP 200 so clients can tell "the
// call reached the engine" from "the call could not be placed", per
// spec section 4.6 and 7. Only gateway-level failures (not-ready,
// disconnected, timeout) take a non-200 status via writeGwerr.
func (rt *Router) respondEngineResult(conn *connfsm.Conn, result json.RawMessage, err error) {
	if err != nil {
		if gerr, ok := err.(*gwerr.Error); ok && gerr.Code == gwerr.CodeEngineReported {
			rt.writeJSON(conn, 200, map[string]any{"success": false, "error": gerr.Message})
			return
		}
		rt.writeGwerr(conn, err)
		return
	}
	rt.writeJSONRaw(conn, 200, true, result)
}

// handleCommand implements the SPEC_FULL.md section C raw passthrough
// decision: the payload must carry its own nonzero id and is routed
// through the same correlator pending-map as every framed tool call.
func (rt *Router) handleCommand(conn *connfsm.Conn, req *httpproto.Request) {
	if rt.eng == nil {
		rt.writeError(conn, gwerr.New(gwerr.CodeNotReady, "engine unavailable"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.requestTimeout)
	defer cancel()
	result, err := rt.eng.CallRaw(ctx, req.Body)
	rt.respondEngineResult(conn, result, err)
}

func (rt *Router) writeGwerr(conn *connfsm.Conn, err error) {
	if gerr, ok := err.(*gwerr.Error); ok {
		rt.writeError(conn, gerr)
		return
	}
	rt.writeError(conn, gwerr.Newf(gwerr.CodeInternal, "%v", err))
}

func (rt *Router) writeError(conn *connfsm.Conn, err *gwerr.Error) {
	body, _ := json.Marshal(err.ToEnvelope())
	resp := httpproto.NewResponse(err.Code.HTTPStatus(), body)
	rt.applyCORS(resp)
	conn.QueueWrite(resp.Serialize())
	if rt.stats != nil {
		rt.stats.IncError()
	}
}

func (rt *Router) writeJSON(conn *connfsm.Conn, status int, payload map[string]any) {
	body, _ := json.Marshal(payload)
	resp := httpproto.NewResponse(status, body)
	rt.applyCORS(resp)
	conn.QueueWrite(resp.Serialize())
}

func (rt *Router) writeJSONRaw(conn *connfsm.Conn, status int, success bool, result json.RawMessage) {
	envelope := map[string]any{"success": success, "result": result}
	rt.writeJSON(conn, status, envelope)
}

// handlePreflight answers an OPTIONS request with a bare 204 carrying
// the configured CORS headers, per the HTTP surface table's "CORS
// preflight -> 204" entry. It is exempt from every gate.
func (rt *Router) handlePreflight(conn *connfsm.Conn) {
	resp := httpproto.NewResponse(204, nil)
	delete(resp.Headers, "Content-Type")
	rt.applyCORS(resp)
	conn.QueueWrite(resp.Serialize())
}

func (rt *Router) applyCORS(resp *httpproto.Response) {
	if !rt.cors.Enabled {
		return
	}
	origin := "*"
	if len(rt.cors.AllowedOrigins) > 0 {
		origin = strings.Join(rt.cors.AllowedOrigins, ", ")
	}
	resp.Headers["Access-Control-Allow-Origin"] = origin
	if len(rt.cors.AllowedMethods) > 0 {
		resp.Headers["Access-Control-Allow-Methods"] = strings.Join(rt.cors.AllowedMethods, ", ")
	}
	if len(rt.cors.AllowedHeaders) > 0 {
		resp.Headers["Access-Control-Allow-Headers"] = strings.Join(rt.cors.AllowedHeaders, ", ")
	}
	if rt.cors.MaxAgeSeconds > 0 {
		resp.Headers["Access-Control-Max-Age"] = fmt.Sprintf("%d", rt.cors.MaxAgeSeconds)
	}
}

func hostOnly(remoteAddr string) string {
	idx := strings.LastIndex(remoteAddr, ":")
	if idx < 0 {
		return remoteAddr
	}
	return remoteAddr[:idx]
}
