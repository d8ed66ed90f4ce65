package domain

import (
	"fmt"
	"strings"
)

// Kind 错误种类：稳定内部码 + 文案
type Kind struct {
	Code    int
	Message Message
}

var (
	KindValidationFailed  = Kind{1, MsgValidationFailed}
	KindDuplicateEmail    = Kind{2, MsgEmailExists}
	KindInvalidToken      = Kind{3, MsgInvalidToken}
	KindTokenExpired      = Kind{4, MsgTokenExpired}
	KindAlreadyConfirmed  = Kind{5, MsgAlreadyConfirmed}
	KindNotAuthenticated  = Kind{6, MsgNotAuthenticated}
	KindIncorrectPassword = Kind{7, MsgIncorrectPassword}
	KindPasswordUnchanged = Kind{8, MsgPasswordSame}
	KindUserNotFound      = Kind{9, MsgUserNotFound}
	KindEmailNotConfirmed = Kind{10, MsgEmailNotConfirmed}
	KindInvalidState      = Kind{11, MsgInvalidState}
)

// Violation 单个字段的校验失败
type Violation struct {
	Field     string `json:"fieldName"`
	Message   string `json:"errorMessage"`
	MessageID string `json:"messageId"`
}

type Error struct {
	Kind       Kind
	Violations []Violation
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Message.Text)
	for i, v := range e.Violations {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", v.Field, v.MessageID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Kind 匹配，errors.Is(err, ErrDuplicateEmail) 不关心附带的 cause
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind.Code == e.Kind.Code
}

func (e *Error) MessageID() string { return e.Kind.Message.ID }

var (
	ErrValidationFailed  = &Error{Kind: KindValidationFailed}
	ErrDuplicateEmail    = &Error{Kind: KindDuplicateEmail}
	ErrInvalidToken      = &Error{Kind: KindInvalidToken}
	ErrTokenExpired      = &Error{Kind: KindTokenExpired}
	ErrAlreadyConfirmed  = &Error{Kind: KindAlreadyConfirmed}
	ErrNotAuthenticated  = &Error{Kind: KindNotAuthenticated}
	ErrIncorrectPassword = &Error{Kind: KindIncorrectPassword}
	ErrPasswordUnchanged = &Error{Kind: KindPasswordUnchanged}
	ErrUserNotFound      = &Error{Kind: KindUserNotFound}
	ErrEmailNotConfirmed = &Error{Kind: KindEmailNotConfirmed}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
)

func NewValidationError(vs []Violation) *Error {
	return &Error{Kind: KindValidationFailed, Violations: vs}
}

// Wrap 给某种错误附上底层 cause
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
