package response

import (
	"errors"

	"account-service/internal/domain"
)

type Resp struct {
	Code         int                `json:"code"`
	Msg          string             `json:"msg"`
	MessageID    string             `json:"messageId,omitempty"`
	InternalCode int                `json:"internalCode,omitempty"`
	Errors       []domain.Violation `json:"errors,omitempty"`
	Data         interface{}        `json:"data"`
}

// New 构造函数（保证 data 不为 null）
func New(code int, msg string, data interface{}) Resp {
	if data == nil {
		data = struct{}{}
	}
	return Resp{Code: code, Msg: msg, Data: data}
}

// OK 成功响应
func OK(data interface{}) Resp {
	return New(CodeOK, CodeMsgMap[CodeOK], data)
}

// Error 失败响应（可以传自定义 msg 覆盖默认）
func Error(code int, customMsg string) Resp {
	msg := CodeMsgMap[code]
	if customMsg != "" {
		msg = customMsg
	}
	return New(code, msg, struct{}{})
}

// kindCodes 领域错误 -> 信封 code
var kindCodes = map[int]int{
	domain.KindValidationFailed.Code:  CodeBadRequest,
	domain.KindDuplicateEmail.Code:    CodeConflict,
	domain.KindInvalidToken.Code:      CodeBadRequest,
	domain.KindTokenExpired.Code:      CodeGone,
	domain.KindAlreadyConfirmed.Code:  CodeConflict,
	domain.KindNotAuthenticated.Code:  CodeUnauthorized,
	domain.KindIncorrectPassword.Code: CodeForbidden,
	domain.KindPasswordUnchanged.Code: CodeBadRequest,
	domain.KindUserNotFound.Code:      CodeUnauthorized,
	domain.KindEmailNotConfirmed.Code: CodeForbidden,
	domain.KindInvalidState.Code:      CodeConflict,
}

// FromDomain 领域错误带上 messageId / internalCode / 字段错误；其他错误返回 false
func FromDomain(err error) (Resp, bool) {
	var de *domain.Error
	if !errors.As(err, &de) {
		return Resp{}, false
	}
	code, ok := kindCodes[de.Kind.Code]
	if !ok {
		code = CodeServerError
	}
	r := Error(code, de.Kind.Message.Text)
	r.MessageID = de.MessageID()
	r.InternalCode = de.Kind.Code
	r.Errors = de.Violations
	return r, true
}
