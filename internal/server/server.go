// Package server assembles repositories, socket transport and HTTP routes into one gin engine.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"lan-chat/internal/authz"
	"lan-chat/internal/config"
	"lan-chat/internal/handlers"
	"lan-chat/internal/identity"
	"lan-chat/internal/logging"
	"lan-chat/internal/middleware"
	"lan-chat/internal/observability"
	"lan-chat/internal/presence"
	"lan-chat/internal/push"
	"lan-chat/internal/rabbitmq"
	"lan-chat/internal/repositories"
	"lan-chat/internal/telemetry"
	"lan-chat/internal/upload"
	"lan-chat/internal/ws"
)

// App is a fully wired chat server.
type App struct {
	Config   *config.Config
	Engine   *gin.Engine
	Hub      *ws.Hub
	Registry *presence.Registry
	Router   *handlers.Router
	Tokens   *identity.Issuer
	Sweeper  *handlers.MuteSweeper

	publisher rabbitmq.Publisher
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	publisher rabbitmq.Publisher
	repoOpts  []repositories.Option
}

// WithPublisher replaces the AMQP publisher built from config.
func WithPublisher(p rabbitmq.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithRepoOptions appends repository options after the ones derived from config.
func WithRepoOptions(opts ...repositories.Option) Option {
	return func(o *options) { o.repoOpts = append(o.repoOpts, opts...) }
}

// New wires every component on top of an already migrated database.
func New(ctx context.Context, cfg *config.Config, database *sqlx.DB, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.publisher == nil {
		o.publisher = rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	}
	observability.SetPublisher(o.publisher)

	repoOpts := append([]repositories.Option{
		repositories.WithEditWindow(cfg.Chat.EditWindow),
		repositories.WithMaxPinned(cfg.Chat.MaxPinned),
		repositories.WithPageSize(cfg.Chat.PageSize, cfg.Chat.MaxPageSize),
	}, o.repoOpts...)

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return nil, fmt.Errorf("load group policy: %w", err)
	}
	users := repositories.NewUserRepo(database, repoOpts...)
	messages := repositories.NewMessageRepo(database, repoOpts...)
	groups := repositories.NewGroupRepo(database, enforcer, repoOpts...)
	groupMessages := repositories.NewGroupMessageRepo(database, repoOpts...)
	reactions := repositories.NewReactionRepo(database, repoOpts...)
	attachments := repositories.NewAttachmentRepo(database, repoOpts...)

	secret, err := identity.LoadSecret(ctx, cfg.Identity.Secret, repositories.NewSettingsRepo(database))
	if err != nil {
		return nil, err
	}
	tokens := identity.NewIssuer(secret, cfg.Identity.TokenTTL)

	store, err := upload.NewStore(cfg.Upload.Dir, cfg.Upload.BaseURL, cfg.Upload.MaxBytes, attachments)
	if err != nil {
		return nil, err
	}

	notifier := push.NewAMQPNotifier(o.publisher, cfg.AMQP.PushRoutingKey, push.DefaultBreakerConfig)
	auditor := telemetry.NewAuditEmitter(o.publisher, cfg.AMQP.AuditRoutingKey, "lan-chat", cfg.Server.Environment)

	hub := ws.NewHub()
	presenceHandler := handlers.NewPresenceHandler(users, messages, groups, hub)
	registry := presence.NewRegistry(presenceHandler)
	presenceHandler.SetRegistry(registry)

	router := handlers.NewRouter(hub, presenceHandler)
	handlers.NewChatHandler(messages, groupMessages, groups, reactions, users, hub, registry, notifier, cfg.Chat.JumpContext).Register(router)
	handlers.NewGroupHandler(groups, groupMessages, users, hub, registry, notifier, auditor).Register(router)

	app := &App{
		Config:    cfg,
		Hub:       hub,
		Registry:  registry,
		Router:    router,
		Tokens:    tokens,
		Sweeper:   handlers.NewMuteSweeper(groups, hub, cfg.Chat.MuteSweepInterval),
		publisher: o.publisher,
	}
	app.Engine = app.routes(ws.NewServer(hub, router, tokens, cfg.Socket), handlers.NewIdentityHandler(users, tokens, hub), upload.NewHandler(store), auditor)

	logging.Info().
		Str("publisher", rabbitmq.PublisherMode(o.publisher)).
		Str("publisher_noop_reason", rabbitmq.PublisherNoopReason(o.publisher)).
		Int("events", len(router.Events())).
		Msg("server wired")
	return app, nil
}

func (a *App) routes(sockets *ws.Server, ids *handlers.IdentityHandler, uploads *upload.Handler, auditor handlers.Auditor) *gin.Engine {
	if a.Config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("lan-chat"))
	r.Use(observability.RequestIDMiddleware())
	r.Use(observability.HTTPMetricsMiddleware())

	r.GET("/healthz", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", sockets.Handle)
	r.StaticFS(a.Config.Upload.BaseURL, http.Dir(a.Config.Upload.Dir))

	auth := middleware.AuthMiddleware(a.Tokens)
	api := r.Group("/api")
	api.POST("/identity", ids.Issue)
	api.GET("/users/me", auth, ids.Me)
	api.PUT("/users/me", auth, ids.UpdateMe)
	api.POST("/upload/:kind", auth, uploads.Upload)

	handlers.RegisterDebugRoutes(r, auditor, a.Config.Server.Debug)
	return r
}

// Close releases the AMQP connection.
func (a *App) Close() error {
	return a.publisher.Close()
}
