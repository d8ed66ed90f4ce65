package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"account-service/internal/app"
	"account-service/internal/core/config"
	"account-service/internal/core/logger"
	"account-service/internal/core/server"
	"account-service/internal/domain"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 返回进程退出码；所有 defer 在 os.Exit 之前执行
func run(args []string) int {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	promote := fs.String("promote", "", "grant the admin role to the account with this email and exit")
	sweep := fs.Bool("sweep", false, "run one retention sweep and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	_ = godotenv.Load()
	cfg, err := config.Read(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log, cleanup := logger.FromConfig(cfg.Log)
	defer cleanup()
	defer logger.RedirectStdLog(log, zapcore.InfoLevel)()

	a, err := app.New(cfg, log, nil)
	if err != nil {
		log.Error("bootstrap failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *promote != "":
		if err := promoteAdmin(ctx, a, *promote); err != nil {
			log.Error("promote failed", zap.String("email", *promote), zap.Error(err))
			return 1
		}
		log.Info("account promoted to admin", zap.String("email", *promote))
		return 0
	case *sweep:
		rep, err := a.Sweeper.RunOnce(ctx)
		log.Info("sweep report",
			zap.Int("scanned", rep.Scanned),
			zap.Int("purged_deleted", rep.PurgedDeleted),
			zap.Int("purged_unconfirmed", rep.PurgedUnconfirmed),
			zap.Int("failed", rep.Failed),
		)
		if err != nil {
			log.Error("sweep finished with errors", zap.Error(err))
			return 1
		}
		return 0
	}

	// 路由（后台端）
	addr := server.Addr(cfg.App.Admin.Host, cfg.App.Admin.Port)
	srv := server.BuildServer(addr, a.AdminEngine(), 5*time.Second, 10*time.Second, 60*time.Second)

	// 启动前打印可点击地址
	host4human := cfg.App.Admin.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.Admin.Port)
	log.Info("admin api",
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)

	if err := a.Serve(ctx, "admin api", srv); err != nil {
		log.Error("admin api exited", zap.Error(err))
		return 1
	}
	return 0
}

func promoteAdmin(ctx context.Context, a *app.App, email string) error {
	acc, err := a.Repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acc == nil {
		return domain.ErrUserNotFound
	}
	acc.Role = domain.RoleAdmin
	acc.UpdatedAt = a.Clock.Now()
	return a.Repo.Update(ctx, acc)
}
