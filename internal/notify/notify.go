package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventConfirmRegistration EventType = "confirm_registration"
	EventPasswordChanged     EventType = "password_changed"
	EventAccountDeleted      EventType = "account_deleted"
)

// 模板数据 key
const (
	KeyName       = "name"
	KeyToken      = "token"
	KeyBaseURL    = "baseUrl"
	KeyConfirmURL = "confirmUrl"
	KeyDaysLeft   = "daysLeft"
)

type Notification struct {
	Type EventType      `json:"type"`
	To   string         `json:"to"`
	Data map[string]any `json:"data"`
	At   time.Time      `json:"at"`
}

type Gateway interface {
	Dispatch(ctx context.Context, n Notification) error
}

// LogGateway 开发环境：只打日志不发信
type LogGateway struct{ Log *zap.Logger }

func (g LogGateway) Dispatch(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("type", string(n.Type)),
		zap.String("to", n.To),
	}
	for k, v := range n.Data {
		if k == KeyToken {
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	g.Log.Info("notification", fields...)
	return nil
}
