// Package app 把配置、存储、领域服务和 HTTP engine 装配到一起，cmd/api 与 cmd/admin 共用。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"account-service/internal/core/auth"
	"account-service/internal/core/cache"
	"account-service/internal/core/clock"
	"account-service/internal/core/config"
	"account-service/internal/core/database"
	"account-service/internal/core/server"
	"account-service/internal/notify"
	"account-service/internal/repo"
	"account-service/internal/service"
	"account-service/internal/transport/http/handler"
	mdw "account-service/internal/transport/http/middleware"
	"account-service/internal/transport/http/router"
	"account-service/pkg/utils"
)

const confirmPath = "/api/v1/accounts/confirm"

type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	RDB      *redis.Client // 未配置 redis.addr 时为 nil
	Clock    clock.Clock
	JWT      *auth.JWTer
	Repo     *repo.AccountRepo
	Accounts *service.AccountService
	Sweeper  *service.Sweeper
	Registry *router.Registry
}

// New 打开数据库并装配所有组件；clk 为 nil 时使用系统时钟
func New(cfg *config.Config, l *zap.Logger, clk clock.Clock) (*App, error) {
	if clk == nil {
		clk = clock.System{}
	}
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver), zap.String("dsn", database.MaskDSN(cfg.DB.DSN)))

	if cfg.DB.AutoMigrate {
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		l.Info("automigrate done")
	}

	a := &App{Cfg: cfg, Log: l, DB: db, Clock: clk}
	if cfg.Redis.Addr != "" {
		a.RDB = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}

	notifier, err := a.notifier()
	if err != nil {
		return nil, err
	}
	locker, err := a.locker()
	if err != nil {
		return nil, err
	}
	policy, err := service.PolicyByName(cfg.Account.PasswordPolicy)
	if err != nil {
		return nil, err
	}

	a.JWT = &auth.JWTer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
		Now:    clk.Now,
	}
	codec := &auth.ConfirmCodec{
		Secret: []byte(cfg.ConfirmSecret()),
		Issuer: cfg.JWT.Issuer,
		TTL:    time.Duration(cfg.Account.TokenTTLHours) * time.Hour,
		Now:    clk.Now,
	}
	retention := service.Retention{
		ConfirmationWindowDays: cfg.Account.ConfirmationWindowDays,
		DeletionGraceDays:      cfg.Account.DeletionGraceDays,
	}

	a.Repo = repo.NewAccountRepo(db)
	a.Accounts = service.NewAccountService(service.Deps{
		Repo:     a.Repo,
		Codec:    codec,
		Creds:    utils.Bcrypt{Cost: cfg.Account.BcryptCost},
		Clock:    clk,
		Notifier: notifier,
		Locker:   locker,
		Policy:   policy,
		Log:      l.Named("account"),
	}, service.Settings{
		Retention:            retention,
		ConfirmationRequired: cfg.Account.ConfirmationRequired,
		BaseURL:              cfg.Account.BaseURL,
		ConfirmPath:          confirmPath,
	})
	sched, err := service.ParseSchedule(cfg.Sweeper.Cron)
	if err != nil {
		return nil, err
	}
	a.Sweeper = service.NewSweeper(a.Repo, retention, clk, sched, l.Named("sweeper"))

	var authLimit gin.HandlerFunc
	if cfg.Limits.AuthRPS > 0 {
		authLimit = mdw.RateLimitPerIP(rate.Limit(cfg.Limits.AuthRPS), max(1, cfg.Limits.AuthBurst), 10*time.Minute)
	}
	a.Registry = router.NewRegistry(
		handler.NewAccountHandler(a.Accounts, a.JWT, cfg.Account.LoginURL, authLimit, l.Named("http")),
		handler.NewAdminHandler(a.Accounts, a.Sweeper, clk, l.Named("admin")),
	)
	return a, nil
}

func (a *App) notifier() (notify.Gateway, error) {
	switch a.Cfg.Notify.Driver {
	case "", "log":
		return notify.LogGateway{Log: a.Log.Named("notify")}, nil
	case "smtp":
		if a.Cfg.Mail.Host == "" {
			return nil, errors.New("notify: smtp driver needs mail.host")
		}
		r, err := notify.NewRenderer()
		if err != nil {
			return nil, err
		}
		m := a.Cfg.Mail
		return &notify.SMTPGateway{
			Host: m.Host, Port: m.Port, Username: m.Username, Password: m.Password,
			From: m.From, Timeout: time.Duration(m.TimeoutSec) * time.Second, Renderer: r,
		}, nil
	case "redis":
		if a.RDB == nil {
			return nil, errors.New("notify: redis driver needs redis.addr")
		}
		return &notify.RedisGateway{RDB: a.RDB, Key: a.Cfg.Notify.QueueKey}, nil
	}
	return nil, fmt.Errorf("notify: unknown driver %q", a.Cfg.Notify.Driver)
}

func (a *App) locker() (cache.Locker, error) {
	switch a.Cfg.Lock.Driver {
	case "", "local":
		return cache.NewLocalLocker(), nil
	case "redis":
		if a.RDB == nil {
			return nil, errors.New("lock: redis driver needs redis.addr")
		}
		return &cache.RedisLocker{
			RDB:    a.RDB,
			Prefix: a.Cfg.App.Name + ":lock:",
			TTL:    time.Duration(a.Cfg.Lock.TTLSec) * time.Second,
			Wait:   time.Duration(a.Cfg.Lock.WaitSec) * time.Second,
		}, nil
	}
	return nil, fmt.Errorf("lock: unknown driver %q", a.Cfg.Lock.Driver)
}

func (a *App) engineOptions() router.EngineOptions {
	return router.EngineOptions{Mode: server.Mode(a.Cfg.App.Env), Limits: a.Cfg.Limits}
}

func (a *App) APIEngine() *gin.Engine {
	return router.NewAPIEngine(a.Log, a.Registry, a.engineOptions())
}

func (a *App) AdminEngine() *gin.Engine {
	return router.NewAdminEngine(a.Log, a.Registry, a.JWT, a.engineOptions())
}

// StartSweeper 后台定时清理，ctx 取消后退出
func (a *App) StartSweeper(ctx context.Context) {
	if !a.Cfg.Sweeper.Enabled {
		a.Log.Info("sweeper disabled")
		return
	}
	go a.Sweeper.Start(ctx)
}

// Serve 启动 HTTP 并在 ctx 结束时优雅关闭
func (a *App) Serve(ctx context.Context, name string, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		a.Log.Info(name+" starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s start: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("%s shutdown: %w", name, err)
	}
	a.Log.Info(name + " stopped gracefully")
	return nil
}

func (a *App) Close() {
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
