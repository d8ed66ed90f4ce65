package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-service/internal/core/auth"
	"account-service/internal/domain"
	"account-service/internal/service"
	"account-service/internal/transport/http/ez"
	mdw "account-service/internal/transport/http/middleware"
)

// 确认链接跳回登录页时带的锚点
const (
	anchorConfirmed        = "success-confirmation"
	anchorInvalidToken     = "invalid-token"
	anchorTokenExpired     = "token-expired"
	anchorAlreadyConfirmed = "user-already-confirmed"
)

// AccountView 对外的账号视图，不含密码哈希
type AccountView struct {
	ID                      string     `json:"id,omitempty"`
	Name                    string     `json:"name"`
	Email                   string     `json:"email,omitempty"`
	Role                    string     `json:"role,omitempty"`
	Status                  string     `json:"status,omitempty"`
	RegisteredAt            *time.Time `json:"registeredAt,omitempty"`
	DeletedAt               *time.Time `json:"deletedAt,omitempty"`
	DaysLeftForRecovery     int        `json:"daysLeftForRecovery"`
	DaysLeftForConfirmation int        `json:"daysLeftForConfirmation"`
	Anonymous               bool       `json:"anonymous"`
}

type AccountHandler struct {
	svc       *service.AccountService
	jwt       *auth.JWTer
	loginURL  string
	authLimit gin.HandlerFunc // 登录、注册额外的按 IP 限速，可为 nil
	log       *zap.Logger
}

func NewAccountHandler(svc *service.AccountService, jwt *auth.JWTer, loginURL string, authLimit gin.HandlerFunc, l *zap.Logger) *AccountHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &AccountHandler{svc: svc, jwt: jwt, loginURL: loginURL, authLimit: authLimit, log: l}
}

func (h *AccountHandler) Priority() int { return 10 }

func (h *AccountHandler) view(a *domain.Account) AccountView {
	if a.IsAnonymous() {
		return AccountView{Name: a.Name, Anonymous: true, DaysLeftForRecovery: -1, DaysLeftForConfirmation: -1}
	}
	reg := a.RegisteredAt
	return AccountView{
		ID:                      a.ID,
		Name:                    a.Name,
		Email:                   a.Email,
		Role:                    a.Role,
		Status:                  string(a.Status),
		RegisteredAt:            &reg,
		DeletedAt:               a.DeletedAt,
		DaysLeftForRecovery:     h.svc.DaysLeftForRecovery(a),
		DaysLeftForConfirmation: h.svc.DaysLeftForConfirmation(a),
	}
}

func (h *AccountHandler) MountAPI(api *gin.RouterGroup) {
	public := ez.New(api, h.log)
	limited := public
	if h.authLimit != nil {
		limited = public.Group("", h.authLimit)
	}

	// --- 注册 ---
	ez.RegisterAction(limited, ez.Action[service.RegisterInput, AccountView]{
		Method: http.MethodPost,
		Path:   "/accounts/register",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *service.RegisterInput) (AccountView, error) {
			acc, err := h.svc.Register(c, *in)
			if err != nil {
				return AccountView{}, err
			}
			return h.view(acc), nil
		},
	})

	// --- 确认（API 调用）---
	type confirmIn struct {
		Token string `json:"token" form:"token"`
	}
	ez.RegisterAction(public, ez.Action[confirmIn, AccountView]{
		Method: http.MethodPost,
		Path:   "/accounts/confirm",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *confirmIn) (AccountView, error) {
			acc, err := h.svc.ConfirmRegistration(c, strings.TrimSpace(in.Token))
			if err != nil {
				return AccountView{}, err
			}
			return h.view(acc), nil
		},
	})

	// --- 确认（邮件里的链接）：结果以锚点形式跳回登录页 ---
	ez.RegisterAction(public, ez.Action[confirmIn, struct{}]{
		Method: http.MethodGet,
		Path:   "/accounts/confirm",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *confirmIn) (struct{}, error) {
			_, err := h.svc.ConfirmRegistration(c, strings.TrimSpace(in.Token))
			anchor, ok := confirmAnchor(err)
			if !ok {
				return struct{}{}, err
			}
			c.Redirect(http.StatusFound, h.loginURL+"#"+anchor)
			return struct{}{}, nil
		},
	})

	// --- 登录：签发访问令牌 ---
	type loginIn struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	type loginOut struct {
		Token   string      `json:"token"`
		Account AccountView `json:"account"`
	}
	ez.RegisterAction(limited, ez.Action[loginIn, loginOut]{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *loginIn) (loginOut, error) {
			acc, err := h.svc.Login(c, in.Email, in.Password)
			if err != nil {
				return loginOut{}, err
			}
			tok, err := h.jwt.Issue(acc.ID, acc.Email, acc.Role)
			if err != nil {
				return loginOut{}, ez.Internal("issue token failed", err)
			}
			return loginOut{Token: tok, Account: h.view(acc)}, nil
		},
	})

	// --- /me：未登录返回匿名占位 ---
	ez.RegisterAction(public.Group("", mdw.AuthJWTOptional(h.jwt)), ez.Action[struct{}, AccountView]{
		Method: http.MethodGet,
		Path:   "/me",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (AccountView, error) {
			acc, err := h.svc.CurrentAccountOrAnonymous(c, c.GetString(ez.CtxEmail))
			if err != nil {
				return AccountView{}, err
			}
			return h.view(acc), nil
		},
	})

	// 鉴权分组（需要登录）
	me := public.Group("/me", mdw.AuthJWT(h.jwt, ""))

	ez.RegisterAction(me, ez.Action[service.ChangeNameInput, AccountView]{
		Method: http.MethodPut,
		Path:   "/name",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.ChangeNameInput) (AccountView, error) {
			acc, err := h.svc.ChangeName(c, c.GetString(ez.CtxEmail), in.Name)
			if err != nil {
				return AccountView{}, err
			}
			return h.view(acc), nil
		},
	})

	ez.RegisterAction(me, ez.Action[service.ChangePasswordInput, AccountView]{
		Method: http.MethodPut,
		Path:   "/password",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.ChangePasswordInput) (AccountView, error) {
			acc, err := h.svc.ChangePassword(c, c.GetString(ez.CtxEmail), *in)
			if err != nil {
				return AccountView{}, err
			}
			return h.view(acc), nil
		},
	})

	ez.RegisterAction(me, ez.Action[service.DeleteInput, AccountView]{
		Method: http.MethodPost,
		Path:   "/delete",
		Binder: ez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *service.DeleteInput) (AccountView, error) {
			acc, err := h.svc.DeleteAccount(c, c.GetString(ez.CtxEmail), in.Password)
			if err != nil {
				return AccountView{}, err
			}
			return h.view(acc), nil
		},
	})

	ez.RegisterAction(me, ez.Action[struct{}, AccountView]{
		Method: http.MethodPost,
		Path:   "/recover",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (AccountView, error) {
			acc, err := h.svc.RecoverAccount(c, c.GetString(ez.CtxEmail))
			if err != nil {
				return AccountView{}, err
			}
			return h.view(acc), nil
		},
	})
}

// confirmAnchor 非确认类错误（如数据库故障）返回 false，走统一错误信封
func confirmAnchor(err error) (string, bool) {
	switch {
	case err == nil:
		return anchorConfirmed, true
	case errors.Is(err, domain.ErrInvalidToken):
		return anchorInvalidToken, true
	case errors.Is(err, domain.ErrTokenExpired):
		return anchorTokenExpired, true
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		return anchorAlreadyConfirmed, true
	}
	return "", false
}
