// Package server exposes position analysis over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-position-analyzer/internal/adapter/chesspresenter"
	"github.com/park285/chess-position-analyzer/internal/chess"
	"github.com/park285/chess-position-analyzer/pkg/chessdto"
)

const (
	defaultRequestGrace = 2 * time.Second
	maxBodyBytes        = 64 * 1024

	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
)

// StatsProvider reports engine occupancy for the health endpoint.
type StatsProvider interface {
	Stats() chess.Stats
}

type Options struct {
	CORSOrigin string
	Limits     chess.BudgetLimits
	// RequestGrace is added to the analysis budget to bound a request.
	RequestGrace time.Duration
	Stats        StatsProvider
	CacheEnabled bool
	Formatter    *chesspresenter.Formatter
	Logger       *zap.Logger
}

type Server struct {
	analyzer chess.PositionAnalyzer
	opts     Options
	fmt      *chesspresenter.Formatter
	log      *zap.Logger
	srv      *fasthttp.Server
}

func New(analyzer chess.PositionAnalyzer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Formatter == nil {
		opts.Formatter = chesspresenter.NewFormatter(nil)
	}
	if opts.RequestGrace <= 0 {
		opts.RequestGrace = defaultRequestGrace
	}
	if strings.TrimSpace(opts.CORSOrigin) == "" {
		opts.CORSOrigin = "*"
	}
	opts.Limits = opts.Limits.Normalized()

	s := &Server{
		analyzer: analyzer,
		opts:     opts,
		fmt:      opts.Formatter,
		log:      opts.Logger,
	}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "chess-position-analyzer",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       opts.Limits.Max + opts.RequestGrace + 5*time.Second,
		MaxRequestBodySize: maxBodyBytes,
	}
	return s
}

func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("http server listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	s.setCORS(ctx)
	if ctx.IsOptions() {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	switch string(ctx.Path()) {
	case "/":
		if !s.allow(ctx, fasthttp.MethodGet, fasthttp.MethodHead) {
			return
		}
		ctx.SetContentType(contentTypeText)
		ctx.SetBodyString(s.fmt.Banner())
	case "/healthz":
		if !s.allow(ctx, fasthttp.MethodGet, fasthttp.MethodHead) {
			return
		}
		s.writeJSON(ctx, fasthttp.StatusOK, s.health())
	case "/analyse-position", "/analyze-position":
		if !s.allow(ctx, fasthttp.MethodPost) {
			return
		}
		s.handleAnalyse(ctx)
	default:
		s.writeJSON(ctx, fasthttp.StatusNotFound, chessdto.ErrorResponse{
			Error: s.fmt.NotFound(string(ctx.Method()), string(ctx.Path())),
			Code:  "not_found",
		})
	}
}

func (s *Server) handleAnalyse(ctx *fasthttp.RequestCtx) {
	var body chessdto.AnalyzeRequest
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		s.writeError(ctx, chesspresenter.CodeBadRequest, fasthttp.StatusBadRequest, nil)
		return
	}

	req := chess.Request{
		Position:   strings.TrimSpace(body.FEN),
		Moves:      chess.NormalizeMoves(body.Moves),
		TimeBudget: time.Duration(body.TimeMillis) * time.Millisecond,
		Depth:      body.Depth,
	}
	if err := s.validate(req); err != nil {
		s.fail(ctx, err)
		return
	}

	budget, err := s.opts.Limits.NormalizeBudget(req.TimeBudget)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, budget+s.opts.RequestGrace)
	defer cancel()

	res, err := s.analyzer.Analyze(reqCtx, req)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, s.fmt.ToAnalyzeResponse(req, res))
}

func (s *Server) validate(req chess.Request) error {
	if req.Position == "" {
		return chess.ErrEmptyPosition
	}
	if err := chess.ValidateFEN(req.Position); err != nil {
		return err
	}
	if len(req.Moves) > 0 {
		return chess.ValidateMoves(req.Position, req.Moves)
	}
	return nil
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, err error) {
	data := map[string]any{
		"Min": s.opts.Limits.Min.Milliseconds(),
		"Max": s.opts.Limits.Max.Milliseconds(),
	}
	de, status := s.fmt.ToDomainError(err, data)
	if status >= fasthttp.StatusInternalServerError {
		s.log.Warn("analysis request failed",
			zap.String("code", de.Code),
			zap.Int("status", status),
			zap.Error(err))
	}
	s.writeJSON(ctx, status, chessdto.NewErrorResponse(de))
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, code string, status int, data map[string]any) {
	s.writeJSON(ctx, status, chessdto.ErrorResponse{Error: s.fmt.Message(code, data), Code: code})
}

func (s *Server) health() chessdto.HealthResponse {
	resp := chessdto.HealthResponse{Status: "ok", Cache: s.opts.CacheEnabled}
	if s.opts.Stats == nil {
		return resp
	}
	st := s.opts.Stats.Stats()
	resp.Mode = st.Mode
	resp.Engine = st.Engine
	if st.Mode == "pooled" {
		resp.Pool = chesspresenter.ToDTOPoolStats(st.Pool)
	}
	return resp
}

func (s *Server) allow(ctx *fasthttp.RequestCtx, methods ...string) bool {
	method := string(ctx.Method())
	for _, m := range methods {
		if method == m {
			return true
		}
	}
	ctx.Response.Header.Set(fasthttp.HeaderAllow, strings.Join(methods, ", "))
	s.writeJSON(ctx, fasthttp.StatusMethodNotAllowed, chessdto.ErrorResponse{
		Error: "method not allowed",
		Code:  "method_not_allowed",
	})
	return false
}

func (s *Server) setCORS(ctx *fasthttp.RequestCtx) {
	h := &ctx.Response.Header
	h.Set(fasthttp.HeaderAccessControlAllowOrigin, s.opts.CORSOrigin)
	h.Set(fasthttp.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
	h.Set(fasthttp.HeaderAccessControlAllowHeaders, "Content-Type")
	if s.opts.CORSOrigin != "*" {
		h.Add(fasthttp.HeaderVary, "Origin")
	}
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode response", zap.Error(err))
		ctx.Error(`{"error":"internal error","code":"internal"}`, fasthttp.StatusInternalServerError)
		ctx.SetContentType(contentTypeJSON)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType(contentTypeJSON)
	ctx.SetBody(raw)
}

// IsClosed reports whether err is the listener error returned after Shutdown.
func IsClosed(err error) bool {
	return err == nil || errors.Is(err, net.ErrClosed)
}
