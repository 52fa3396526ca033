package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbot-backend/internal/config"
	"chatbot-backend/internal/database"
	"chatbot-backend/internal/discord"
	"chatbot-backend/internal/handler"
	"chatbot-backend/internal/middleware"
	"chatbot-backend/internal/model"
	"chatbot-backend/internal/pubsub"
	"chatbot-backend/internal/repository"
	"chatbot-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and socket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(memory)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep everything in memory instead of Postgres")
	return cmd
}

type identityRepo interface {
	service.IdentityDirectory
	Upsert(ctx context.Context, identity model.Identity) error
	SetRole(ctx context.Context, id string, role model.Role) error
}

type storage struct {
	pool          *pgxpool.Pool
	conversations service.ConversationStore
	notifications service.NotificationStore
	settings      service.BotSettingsProvider
	identities    identityRepo
}

func openStorage(ctx context.Context, cfg *config.Config, memory bool) (*storage, error) {
	if memory {
		log.Println("[DB] using in-memory storage, nothing survives a restart")
		return &storage{
			conversations: repository.NewMemoryConversations(),
			notifications: repository.NewMemoryNotifications(),
			settings:      repository.NewMemorySettings(),
			identities:    repository.NewMemoryIdentities(),
		}, nil
	}

	db, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if _, err := database.RunMigrations(ctx, db, ""); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &storage{
		pool:          db,
		conversations: repository.NewConversationRepository(db),
		notifications: repository.NewNotificationRepository(db),
		settings:      repository.NewSettingsRepository(db),
		identities:    repository.NewIdentityRepository(db),
	}, nil
}

func runServe(memory bool) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, memory)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	// Services
	registry := service.NewRegistry()
	settings := service.NewSettingsCache(st.settings, cfg.SettingsCacheTTL)
	conversations := service.NewConversationService(st.conversations, st.notifications, registry, settings)

	var publisher service.HandoffPublisher
	if cfg.AMQPURL != "" {
		p, err := pubsub.NewPublisher(ctx, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("[AMQP] disabled: %v", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	dispatcher := service.NewDispatcher(st.notifications, registry, conversations, st.identities, publisher)
	router := service.NewRouter(registry, conversations, st.identities)
	conversations.SetSender(router)

	var alerter service.StaffAlerter
	staffBot, err := discord.NewBot(cfg.DiscordToken, cfg.DiscordStaffChannelID, discord.NewCommandHandler(registry, dispatcher))
	if err != nil {
		log.Printf("[Discord] disabled: %v", err)
	} else if staffBot != nil {
		if err := staffBot.Start(); err != nil {
			log.Printf("[Discord] gateway unavailable, alerts only: %v", err)
		}
		defer staffBot.Stop()
		alerter = staffBot
	}

	bot := service.NewBotEngine(settings, conversations, router, dispatcher, st.identities, alerter)
	router.SetInterceptor(bot)
	presence := service.NewPresence(registry, dispatcher)
	authSvc := service.NewAuthService(cfg.JWTSecret)

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger(500 * time.Millisecond))
	app.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health
	var pinger handler.Pinger
	if st.pool != nil {
		pinger = st.pool
	}
	healthH := handler.NewHealthHandler(pinger)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)

	// WebSocket
	wsH := handler.NewWSHandler(registry, presence, router, bot, dispatcher, authSvc, st.identities, handler.WSOptions{
		CookieName:  cfg.AuthCookie,
		ReadTimeout: cfg.SocketReadTimeout,
		RatePerSec:  cfg.SocketRatePerSec,
		RateBurst:   cfg.SocketRateBurst,
	})
	app.Get("/ws", wsH.Upgrade)

	v1 := app.Group("/api/v1")

	// Admin routes go before the authenticated group so its middleware never sees them
	admin := v1.Group("/admin", middleware.AdminKey(cfg.AdminKey))
	adminH := handler.NewAdminHandler(registry, st.identities, settings)
	admin.Get("/stats", adminH.Stats)
	admin.Put("/identities/:id/role", adminH.SetRole)
	admin.Post("/settings/:business/invalidate", adminH.InvalidateSettings)

	protected := v1.Group("", middleware.Auth(authSvc, cfg.AuthCookie), middleware.RateLimit(120, time.Minute))

	convH := handler.NewConversationHandler(conversations)
	convs := protected.Group("/conversations")
	convs.Get("/", convH.List)
	convs.Post("/bot", convH.StartBot)
	convs.Get("/:id", convH.Get)
	convs.Post("/:id/read", convH.Read)
	convs.Post("/:id/new-session", convH.NewSession)
	convs.Post("/:id/end-support", middleware.RequireStaff(), convH.EndSupport)

	notifH := handler.NewNotificationHandler(dispatcher)
	notifs := protected.Group("/notifications", middleware.RequireStaff())
	notifs.Get("/", notifH.List)
	notifs.Post("/:id/accept", notifH.Accept)
	notifs.Post("/:id/decline", notifH.Decline)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Port)
	}()

	log.Printf("Chatbot backend %s running on :%s (%s)", Version, cfg.Port, cfg.Env)

	select {
	case err := <-errCh:
		registry.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	registry.Shutdown()
	log.Println("Server stopped")
	return nil
}
