package main

import (
	"flag"
	"log"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"techassist/server/internal/api"
	"techassist/server/internal/auth"
	"techassist/server/internal/catalog"
	"techassist/server/internal/config"
	"techassist/server/internal/diagnostic"
	"techassist/server/internal/guidance"
	"techassist/server/internal/hub"
	"techassist/server/internal/model"
	"techassist/server/internal/notify"
	"techassist/server/internal/postgres"
	"techassist/server/internal/probe"
	"techassist/server/internal/session"
	"techassist/server/internal/stepwise"
	"techassist/server/internal/ticket"
)

func main() {
	// Runtime parameters come from flags and the YAML config; secrets
	// (DATABASE_URL, SMTP_PASSWORD) come from environment variables and
	// override their config counterparts in config.Load.
	configPath := flag.String("config", "server/configs/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	seed, err := catalog.LoadSeed(cfg.Paths.Catalog)
	if err != nil {
		logger.Fatal("load catalog", zap.String("path", cfg.Paths.Catalog), zap.Error(err))
	}
	cat := catalog.NewInMemoryStore(seed)

	var (
		tickets  ticket.Store
		sessions session.Store
	)
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(cfg.Database.DSN)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		tickets = postgres.NewTicketStore(db)
		sessions = postgres.NewSessionStore(db)
		logger.Info("using postgres stores")
	} else {
		tickets = ticket.NewInMemoryStore()
		sessions = session.NewInMemoryStore()
		logger.Info("using in-memory stores")
	}

	users := auth.NewStatic(staticUsers(cfg.Auth.Users))

	runner := probe.NewRunner(cfg.Probes, logger)
	ticketSvc := ticket.NewService(tickets, users, logger)
	engine := diagnostic.NewEngine(sessions, cat, runner, ticketSvc, logger)
	stepwiseSvc := stepwise.New(sessions, cat, engine, logger)
	guidanceSvc := guidance.NewService(tickets, logger)

	h := hub.New(cfg.Hub, logger)
	mailer := notify.NewMailer(cfg.SMTP, logger)
	dispatcher := notify.NewDispatcher(h, mailer, logger)

	server := api.NewServer(cfg, logger, api.Deps{
		Auth:          users,
		Users:         users,
		Catalog:       cat,
		Tickets:       tickets,
		TicketService: ticketSvc,
		Engine:        engine,
		Stepwise:      stepwiseSvc,
		Guidance:      guidanceSvc,
		Hub:           h,
		Dispatcher:    dispatcher,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("techassist server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

func staticUsers(users []config.AuthUser) map[string]model.User {
	out := make(map[string]model.User, len(users))
	for _, u := range users {
		out[u.Token] = model.User{
			ID:     u.ID,
			Email:  u.Email,
			Prenom: u.Prenom,
			Nom:    u.Nom,
			Role:   model.Role(u.Role),
			Actif:  u.Actif,
		}
	}
	return out
}
