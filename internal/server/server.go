package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/movebox/customerdupes/internal/config"
	"github.com/movebox/customerdupes/internal/database"
	"github.com/movebox/customerdupes/internal/dedupe"
	"github.com/movebox/customerdupes/internal/scheduler"
)

type Server struct {
	cfg       config.Config
	db        *database.DB
	engine    *dedupe.Engine
	sched     *scheduler.Scheduler
	version   string
	buildTime string
	httpSrv   *http.Server

	keyMu       sync.RWMutex
	verifiedKey string // last key that passed the bcrypt check
}

// New wires the HTTP API. sched may be nil when the scheduler is disabled.
func New(cfg config.Config, db *database.DB, engine *dedupe.Engine, sched *scheduler.Scheduler, version, buildTime string) *Server {
	return &Server{
		cfg:       cfg,
		db:        db,
		engine:    engine,
		sched:     sched,
		version:   version,
		buildTime: buildTime,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return recoveryMiddleware(loggingMiddleware(mux))
}

// Start sets up routes and starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	slog.Info("Starting server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.requireAPIKey(h))
	}

	api("GET /api/v1/customers", s.handleCustomerList)
	api("POST /api/v1/customers", s.handleCustomerCreate)
	api("GET /api/v1/customers/{id}", s.handleCustomerGet)
	api("PATCH /api/v1/customers/{id}", s.handleCustomerUpdate)
	api("DELETE /api/v1/customers/{id}", s.handleCustomerDelete)

	api("GET /api/v1/duplicates", s.handleDuplicateList)
	api("GET /api/v1/duplicates/stats", s.handleDuplicateStats)
	api("GET /api/v1/duplicates/{masterId}/proposal", s.handleProposal)
	api("POST /api/v1/duplicates/merge", s.handleMerge)
	api("POST /api/v1/duplicates/auto-merge", s.handleAutoMerge)
	api("POST /api/v1/duplicates/delete", s.handleDeleteDuplicates)

	api("GET /api/v1/merges", s.handleMergeLog)
	api("POST /api/v1/apikey/regenerate", s.handleAPIKeyRegenerate)
}
