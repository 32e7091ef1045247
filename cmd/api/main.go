package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"permitpilot/internal/cache"
	"permitpilot/internal/config"
	"permitpilot/internal/database"
	"permitpilot/internal/domain"
	"permitpilot/internal/middleware"
	"permitpilot/internal/modules/auth"
	"permitpilot/internal/modules/events"
	"permitpilot/internal/modules/upload"
	jwtsvc "permitpilot/internal/pkg/jwt"
	"permitpilot/internal/pkg/limiter"
	"permitpilot/internal/pkg/summarizer"
	"permitpilot/internal/repository"
	"permitpilot/internal/storage"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}

	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Upload{},
		&domain.UploadTag{},
	); err != nil {
		log.Fatal(err)
	}

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	userRepo := repository.NewUserRepository(db)
	authService := auth.NewService(userRepo, j)
	authHandler := auth.NewHandler(authService)

	hub := events.NewHub()
	defer hub.Close()
	eventsHandler := events.NewHandler(hub, log)

	var sum upload.Summarizer
	if cfg.SummarizeBaseURL != "" {
		sum = summarizer.New(cfg.SummarizeBaseURL, cfg.SummarizeAPIKey, cfg.SummarizeModel, cfg.SummarizeTimeout)
	} else {
		log.Warn("OPENAI_BASE_URL is empty, summarization endpoints will fail upstream")
	}

	uploadRepo := upload.NewRepository(db)
	files := storage.New(cfg.UploadsDir, cfg.StaticBase)
	uploadService := upload.NewService(uploadRepo, files, cache.New(), sum).WithNotifier(hub)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		uploadService = uploadService.WithLimiter(
			limiter.NewRedis(rdb, cfg.SummarizeSlots, "permitpilot:slots:", 10*time.Minute),
		)
		log.WithField("addr", cfg.RedisAddr).Info("summarization concurrency limiter enabled")
	}

	uploadHandler := upload.NewHandler(uploadService, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(log))

	// Uploaded bytes are served statically, same as the dashboard links them.
	r.Static(cfg.StaticBase, cfg.UploadsDir)

	v1 := r.Group("/api/v1")
	{
		// public
		auth.RegisterRoutes(v1, authHandler)

		// protected
		protected := v1.Group("/")
		protected.Use(middleware.RequireAuth(j))
		{
			auth.RegisterProtectedRoutes(protected, authHandler)
			upload.RegisterRoutes(protected, uploadHandler)
			events.RegisterRoutes(protected, eventsHandler)
		}
	}

	log.WithField("addr", cfg.HTTPAddr).Info("starting server")
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal(err)
	}
}
