package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"account-service/internal/core/clock"
	"account-service/internal/domain"
)

var (
	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "account_sweeper_runs_total", Help: "Count of retention sweeps"},
		[]string{"result"},
	)
	sweepPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "account_sweeper_purged_total", Help: "Accounts purged by the sweeper"},
		[]string{"reason"},
	)
	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "account_sweeper_duration_seconds",
		Help:    "Duration of retention sweeps",
		Buckets: prometheus.DefBuckets,
	})
)

func init() { prometheus.MustRegister(sweepRuns, sweepPurged, sweepDuration) }

const (
	reasonDeleted     = "deletion_grace_expired"
	reasonUnconfirmed = "confirmation_expired"
)

// SweepReport 单次清理结果
type SweepReport struct {
	StartedAt         time.Time `json:"startedAt"`
	Scanned           int       `json:"scanned"`
	PurgedDeleted     int       `json:"purgedDeleted"`
	PurgedUnconfirmed int       `json:"purgedUnconfirmed"`
	Failed            int       `json:"failed"`
	DurationMillis    int64     `json:"durationMillis"`
}

// DefaultSchedule 每天 UTC 零点
const DefaultSchedule = "0 0 0 * * ?"

// 合并后的清理不受单个调用方取消影响，但整体有上限
const sweepTimeout = 10 * time.Minute

// 6 段带秒，? 等同 *，也接受 @daily 这类描述符
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule 解析 sweeper.cron，按 UTC 计算触发时刻
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("sweeper schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Sweeper 清理过期的已删除账号与未确认账号
type Sweeper struct {
	repo  domain.AccountRepository
	ret   Retention
	clock clock.Clock
	sched cron.Schedule
	log   *zap.Logger

	sf singleflight.Group
}

// NewSweeper sched 为 nil 时用 DefaultSchedule
func NewSweeper(repo domain.AccountRepository, ret Retention, clk clock.Clock, sched cron.Schedule, l *zap.Logger) *Sweeper {
	if sched == nil {
		sched, _ = scheduleParser.Parse(DefaultSchedule)
	}
	if clk == nil {
		clk = clock.System{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Sweeper{repo: repo, ret: ret, clock: clk, sched: sched, log: l}
}

// RunOnce 并发调用会合并成同一次清理。调用方取消只让自己提前返回，进行中的清理继续跑完
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	if err := ctx.Err(); err != nil {
		return SweepReport{}, err
	}
	ch := s.sf.DoChan("sweep", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepTimeout)
		defer cancel()
		return s.sweep(rctx)
	})
	select {
	case <-ctx.Done():
		s.log.Debug("sweep caller gone, run continues", zap.Error(ctx.Err()))
		return SweepReport{}, ctx.Err()
	case r := <-ch:
		if r.Shared {
			s.log.Debug("sweep merged with in-flight run")
		}
		rep, _ := r.Val.(SweepReport)
		return rep, r.Err
	}
}

func (s *Sweeper) sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	rep := SweepReport{StartedAt: s.clock.Now().UTC()}
	var errs []error

	for _, st := range []domain.AccountStatus{domain.StatusDeleted, domain.StatusNew} {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		accs, err := s.repo.FindByStatus(ctx, st)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", st, err))
			continue
		}
		now := s.clock.Now().UTC()
		for i := range accs {
			acc := &accs[i]
			rep.Scanned++
			reason, expired := s.expired(acc, now)
			if !expired {
				continue
			}
			if err := s.repo.Delete(ctx, acc); err != nil {
				rep.Failed++
				s.log.Error("purge account failed", zap.String("id", acc.ID), zap.Error(err))
				errs = append(errs, fmt.Errorf("purge %s: %w", acc.ID, err))
				continue
			}
			sweepPurged.WithLabelValues(reason).Inc()
			if reason == reasonDeleted {
				rep.PurgedDeleted++
			} else {
				rep.PurgedUnconfirmed++
			}
			s.log.Info("account purged", zap.String("id", acc.ID), zap.String("reason", reason))
		}
	}

	elapsed := time.Since(start)
	rep.DurationMillis = elapsed.Milliseconds()
	sweepDuration.Observe(elapsed.Seconds())

	err := errors.Join(errs...)
	result := "ok"
	if err != nil {
		result = "error"
	}
	sweepRuns.WithLabelValues(result).Inc()
	s.log.Info("sweep finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("purged_deleted", rep.PurgedDeleted),
		zap.Int("purged_unconfirmed", rep.PurgedUnconfirmed),
		zap.Int("failed", rep.Failed),
		zap.Duration("took", elapsed),
	)
	return rep, err
}

func (s *Sweeper) expired(acc *domain.Account, now time.Time) (string, bool) {
	switch acc.Status {
	case domain.StatusDeleted:
		return reasonDeleted, s.ret.DaysLeftForRecovery(acc, now) == 0
	case domain.StatusNew:
		return reasonUnconfirmed, s.ret.DaysLeftForConfirmation(acc, now) == 0
	}
	return "", false
}

// NextRun now 之后的下一个触发时刻（严格大于 now），UTC
func (s *Sweeper) NextRun(now time.Time) time.Time {
	return s.sched.Next(now.UTC())
}

// Start 阻塞运行定时清理，ctx 取消后等进行中的任务结束再返回
func (s *Sweeper) Start(ctx context.Context) {
	cl := cron.PrintfLogger(zap.NewStdLog(s.log))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.sched, cron.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("sweep completed with errors", zap.Error(err))
		}
	}))
	s.log.Info("sweeper scheduled", zap.Time("next_run", s.NextRun(s.clock.Now())))

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("sweeper stopped")
}
