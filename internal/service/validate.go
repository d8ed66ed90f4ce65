package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"account-service/internal/domain"
)

// PasswordPolicy 可插拔的密码强度规则
type PasswordPolicy interface {
	Check(password string) error
}

// MinLengthPolicy 至少 N 个字符
type MinLengthPolicy struct{ Min int }

func (p MinLengthPolicy) Check(pw string) error {
	if len([]rune(pw)) < p.Min {
		return domain.MsgInvalidPassword
	}
	return nil
}

// StrongPolicy 至少 N 个字符，含大小写与数字，不含空白
type StrongPolicy struct{ Min int }

func (p StrongPolicy) Check(pw string) error {
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsSpace(r):
			return domain.MsgWeakPassword
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if len([]rune(pw)) < p.Min || !upper || !lower || !digit {
		return domain.MsgWeakPassword
	}
	return nil
}

func PolicyByName(name string) (PasswordPolicy, error) {
	switch strings.ToLower(name) {
	case "", "basic":
		return MinLengthPolicy{Min: 8}, nil
	case "strong":
		return StrongPolicy{Min: 8}, nil
	}
	return nil, fmt.Errorf("unknown password policy %q", name)
}

func policyRule(p PasswordPolicy) validation.Rule {
	return validation.By(func(v interface{}) error {
		s, _ := v.(string)
		if s == "" {
			return nil // Required 负责空值
		}
		return p.Check(s)
	})
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *RegisterInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
}

func (in RegisterInput) Validate(p PasswordPolicy) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required.Error(domain.MsgEmptyName.ID)),
		validation.Field(&in.Email,
			validation.Required.Error(domain.MsgEmptyEmail.ID),
			is.Email.Error(domain.MsgInvalidEmail.ID),
		),
		validation.Field(&in.Password,
			validation.Required.Error(domain.MsgEmptyPassword.ID),
			policyRule(p),
		),
	)
}

type ChangeNameInput struct {
	Name string `json:"name"`
}

func (in ChangeNameInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required.Error(domain.MsgEmptyName.ID)),
	)
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (in ChangePasswordInput) Validate(p PasswordPolicy) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.OldPassword, validation.Required.Error(domain.MsgEmptyField.ID)),
		validation.Field(&in.NewPassword,
			validation.Required.Error(domain.MsgEmptyField.ID),
			policyRule(p),
		),
	)
}

type DeleteInput struct {
	Password string `json:"password"`
}

func (in DeleteInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Password, validation.Required.Error(domain.MsgEmptyPassword.ID)),
	)
}

// toDomainError 把 ozzo 的字段错误全部收集成 Violation，按字段名排序保证输出稳定
func toDomainError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for f := range verrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	vs := make([]domain.Violation, 0, len(fields))
	for _, f := range fields {
		vs = append(vs, violation(f, verrs[f]))
	}
	return domain.NewValidationError(vs)
}

func violation(field string, err error) domain.Violation {
	var m domain.Message
	if errors.As(err, &m) {
		return domain.Violation{Field: field, Message: m.Text, MessageID: m.ID}
	}
	if m, ok := domain.LookupMessage(err.Error()); ok {
		return domain.Violation{Field: field, Message: m.Text, MessageID: m.ID}
	}
	return domain.Violation{Field: field, Message: err.Error(), MessageID: domain.MsgEmptyField.ID}
}
