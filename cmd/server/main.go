package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/grievance-portal/internal/config"
	"github.com/iliyamo/grievance-portal/internal/database"
	"github.com/iliyamo/grievance-portal/internal/handler"
	"github.com/iliyamo/grievance-portal/internal/limiter"
	"github.com/iliyamo/grievance-portal/internal/middleware"
	"github.com/iliyamo/grievance-portal/internal/notify"
	"github.com/iliyamo/grievance-portal/internal/repository"
	"github.com/iliyamo/grievance-portal/internal/router"
	"github.com/iliyamo/grievance-portal/internal/service"
	"github.com/iliyamo/grievance-portal/internal/storage"
	"github.com/iliyamo/grievance-portal/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DB.Driver); err != nil {
		return err
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	var lim limiter.Limiter
	switch {
	case cfg.Login.Backend == "redis" && rdb != nil:
		lim = limiter.NewRedis(rdb, cfg.Login.Window, cfg.Login.Limit, cfg.Login.Prefix)
	default:
		if cfg.Login.Backend == "redis" {
			log.Warn("redis unavailable, using in-process login limiter")
		}
		mem := limiter.NewMemory(cfg.Login.Window, cfg.Login.Limit)
		defer mem.Close()
		lim = mem
	}

	blobs, err := storage.New(ctx, cfg.Upload)
	if err != nil {
		return err
	}

	sink, err := notify.NewSink(cfg.Mail, log)
	if err != nil {
		return err
	}
	disp := notify.NewDispatcher(notify.NewRenderer(cfg.Mail.HTML), sink, cfg.Notify.Workers, cfg.Notify.QueueSize, log)
	// workers outlive the signal context so that Close can drain them
	disp.Start(context.WithoutCancel(ctx))

	signer, err := utils.NewTokenSigner(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, time.Duration(cfg.Auth.AccessTTLMin)*time.Minute)
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	grievanceRepo := repository.NewGrievanceRepo(db)
	fileRepo := repository.NewFileRepo(db)
	deptRepo := repository.NewDepartmentRepo(db)

	authSvc := service.NewAuthService(users, signer, lim, cfg.Auth.BcryptCost, log)
	guard := service.NewGuard(users, signer, log)
	grievances := service.NewGrievanceService(grievanceRepo, users, deptRepo, disp, cfg.Mail.AdminEmail, log)
	files := service.NewFileService(fileRepo, grievanceRepo, blobs, log)
	departments := service.NewDepartmentService(deptRepo)

	if cfg.Bootstrap.AdminEmail != "" && cfg.Bootstrap.AdminPassword != "" {
		created, err := authSvc.BootstrapAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			log.Info("admin account created", "email", cfg.Bootstrap.AdminEmail)
		}
	}

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	gh := handler.NewGrievanceHandler(grievances, files)
	dh := handler.NewDepartmentHandler(departments, cache)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc), guard)
	router.RegisterPublic(e, dh, cache)
	router.RegisterGrievances(e, gh, handler.NewFileHandler(files), guard)
	router.RegisterAdmin(e, gh, dh, guard)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.Env, "db", cfg.DB.Driver, "storage", cfg.Upload.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	if err := disp.Close(shutdownCtx); err != nil {
		log.Warn("notification drain", "err", err)
	}
	return nil
}
