package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nebulasphere007-cell/MockZen/config"
	"github.com/nebulasphere007-cell/MockZen/internal/db"
	"github.com/nebulasphere007-cell/MockZen/internal/handlers"
	"github.com/nebulasphere007-cell/MockZen/internal/logging"
	"github.com/nebulasphere007-cell/MockZen/internal/mq"
	"github.com/nebulasphere007-cell/MockZen/internal/services"
	"github.com/nebulasphere007-cell/MockZen/internal/storage"
	"github.com/nebulasphere007-cell/MockZen/internal/store"
	"go.uber.org/zap"
)

// Server wraps the HTTP server, its router and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     mq.Backend
	objects    storage.ObjectStorage
	sessions   *services.SessionAuthority
	cfg        config.Config
	log        *zap.Logger
	stop       context.CancelFunc
}

// New opens every backing service and mounts the API routes.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open mq: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = broker.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	accountRepo := store.NewAccountRepository(dbConn)
	institutionRepo := store.NewInstitutionRepository(dbConn)
	ledgerRepo := store.NewLedgerRepository(dbConn)
	poolRepo := store.NewInstitutionCreditRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)
	limiter := store.NewLoginLimiter(dbConn, cfg.Login.Window, cfg.Login.MaxFailures, cfg.Login.BlockFor)

	identity := services.NewIdentityService(accountRepo, institutionRepo)
	authority := services.NewSessionAuthority(sessionRepo, accountRepo, cfg.Session, log)
	gate := services.NewAccessGate(authority)
	ledger := services.NewCreditLedger(ledgerRepo, services.NewLedgerEvents(broker, cfg.MQ.EventsTopic), cfg, log)
	provisioning := services.NewProvisioningService(identity, cfg, log)
	login := services.NewLoginService(identity, authority, limiter, log)

	var writer services.ObjectWriter
	if objects != nil {
		writer = objects
	}
	statements := services.NewStatementService(identity, ledger, ledgerRepo, writer, log)
	pools := services.NewInstitutionCredits(poolRepo, identity, cfg, log)
	overview := services.NewOverviewService(ledgerRepo, pools, identity)

	if err := provisioning.Seed(ctx); err != nil {
		log.Error("seed super admin failed", zap.Error(err))
	}

	sessions := handlers.NewSessions(authority, gate, cfg.Session, log)
	superAdmin := handlers.NewSuperAdminHandler(sessions, login, identity, ledger, provisioning, statements, pools, overview, log)
	auth := handlers.NewAuthHandler(sessions, login, provisioning, log)
	members := handlers.NewMemberHandler(sessions, gate, identity, ledger, pools, log)

	router := chi.NewRouter()
	router.Use(middlewares(log)...)
	router.Get("/healthz", handlers.Healthz(dbConn))
	router.Route("/api/super-admin", func(r chi.Router) {
		handlers.SuperAdminRouter(r, superAdmin)
	})
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, auth)
	})
	router.Route("/api/user", func(r chi.Router) {
		handlers.UserRouter(r, members)
	})
	router.Route("/api/institution", func(r chi.Router) {
		handlers.InstitutionRouter(r, members)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		objects:    objects,
		sessions:   authority,
		cfg:        cfg,
		log:        log,
	}, nil
}

// middlewares is the stack applied to every route. The request logger wraps
// the recoverer so a recovered panic is still logged with its 500 status.
func middlewares(log *zap.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware(log),
		logging.Recoverer(log),
		middleware.Timeout(60 * time.Second),
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the session sweeper and the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.sessions.RunSweeper(ctx, s.cfg.Session.SweepInterval, s.cfg.Session.Retention)

	s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker, storage and database.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	err := s.httpServer.Shutdown(ctx)

	if s.broker != nil {
		if cerr := s.broker.Close(); cerr != nil {
			s.log.Warn("close mq", zap.Error(cerr))
		}
	}
	if closer, ok := s.objects.(io.Closer); ok {
		_ = closer.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
