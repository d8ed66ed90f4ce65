package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-service/internal/core/clock"
	"account-service/internal/domain"
	"account-service/internal/service"
	"account-service/internal/transport/http/ez"
)

type AdminHandler struct {
	svc     *service.AccountService
	sweeper *service.Sweeper
	acc     *AccountHandler // 复用视图
	clock   clock.Clock
	log     *zap.Logger
}

func NewAdminHandler(svc *service.AccountService, sw *service.Sweeper, clk clock.Clock, l *zap.Logger) *AdminHandler {
	if clk == nil {
		clk = clock.System{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &AdminHandler{svc: svc, sweeper: sw, acc: &AccountHandler{svc: svc}, clock: clk, log: l}
}

func (h *AdminHandler) MountAdmin(admin *gin.RouterGroup) {
	e := ez.New(admin, h.log)

	// --- GET /admin/v1/accounts  账号列表 ---
	type listQ struct {
		Status string `form:"status"`
		Offset int    `form:"offset,default=0"`
		Limit  int    `form:"limit,default=20"`
	}
	type listOut struct {
		Total int64         `json:"total"`
		Items []AccountView `json:"items"`
	}
	ez.RegisterAction(e, ez.Action[listQ, listOut]{
		Method: http.MethodGet,
		Path:   "/accounts",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listQ) (listOut, error) {
			accs, total, err := h.svc.ListAccounts(c, domain.ListQuery{
				Status: domain.AccountStatus(in.Status),
				Offset: in.Offset,
				Limit:  in.Limit,
			})
			if err != nil {
				return listOut{}, err
			}
			out := listOut{Total: total, Items: make([]AccountView, 0, len(accs))}
			for i := range accs {
				out.Items = append(out.Items, h.acc.view(&accs[i]))
			}
			return out, nil
		},
	})

	// --- POST /admin/v1/sweeps  立即执行一次清理 ---
	ez.RegisterAction(e, ez.Action[struct{}, service.SweepReport]{
		Method: http.MethodPost,
		Path:   "/sweeps",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (service.SweepReport, error) {
			rep, err := h.sweeper.RunOnce(c)
			if err != nil {
				// 部分失败也返回报告，错误细节只进日志
				h.log.Warn("manual sweep finished with errors", zap.Error(err))
				if rep.Failed == 0 {
					return rep, ez.Internal("sweep failed", err)
				}
			}
			return rep, nil
		},
	})

	// --- GET /admin/v1/sweeps/next  下次定时清理时间 ---
	type nextOut struct {
		NextRun time.Time `json:"nextRun"`
	}
	ez.RegisterAction(e, ez.Action[struct{}, nextOut]{
		Method: http.MethodGet,
		Path:   "/sweeps/next",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (nextOut, error) {
			return nextOut{NextRun: h.sweeper.NextRun(h.clock.Now())}, nil
		},
	})
}
