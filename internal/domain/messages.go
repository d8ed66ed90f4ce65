package domain

// Message 面向客户端的文案；ID 稳定，客户端按 ID 做 i18n
type Message struct {
	ID   string
	Text string
}

// Error 让 Message 可直接作为校验规则的错误返回
func (m Message) Error() string { return m.ID }

var (
	MsgEmptyName         = Message{"EMPTY_NAME", "The name cannot be empty."}
	MsgEmptyEmail        = Message{"EMPTY_EMAIL", "Please insert your email."}
	MsgInvalidEmail      = Message{"INVALID_EMAIL", "Email should be valid."}
	MsgEmptyPassword     = Message{"EMPTY_PASSWORD", "Please insert your password."}
	MsgInvalidPassword   = Message{"INVALID_PASSWORD", "Password must have at least 8 characters."}
	MsgWeakPassword      = Message{"INVALID_PASSWORD", "Password must have at least 8 characters, one uppercase letter, one lowercase letter, one number and no spaces."}
	MsgEmptyField        = Message{"EMPTY_FIELD", "Please provide a non-empty value."}
	MsgShortField        = Message{"SHORT_FIELD", "Input field is too short. Please enter a longer value."}
	MsgValidationFailed  = Message{"INPUT_VALIDATION_FAILED", "Input validation failed."}
	MsgEmailExists       = Message{"EMAIL_ALREADY_EXISTS", "An account with this email address already exists."}
	MsgInvalidToken      = Message{"INVALID_TOKEN", "The confirmation link is invalid."}
	MsgTokenExpired      = Message{"TOKEN_EXPIRED", "The confirmation link has expired."}
	MsgAlreadyConfirmed  = Message{"USER_ALREADY_CONFIRMED", "The user has already been confirmed."}
	MsgNotAuthenticated  = Message{"USER_NOT_AUTHENTICATED", "User not authenticated."}
	MsgIncorrectPassword = Message{"INCORRECT_PASSWORD", "Incorrect password."}
	MsgPasswordSame      = Message{"PASSWORD_SAME_AS_OLD", "The new password is the same as the old one."}
	MsgUserNotFound      = Message{"USER_NOT_FOUND", "Incorrect email or password."}
	MsgEmailNotConfirmed = Message{"EMAIL_NOT_CONFIRMED", "Email not confirmed."}
	MsgInvalidState      = Message{"ACCOUNT_STATE_INVALID", "The operation is not allowed in the current account state."}
)

var fieldMessages = map[string]Message{}

func init() {
	for _, m := range []Message{
		MsgEmptyName, MsgEmptyEmail, MsgInvalidEmail, MsgEmptyPassword,
		MsgInvalidPassword, MsgEmptyField, MsgShortField,
	} {
		fieldMessages[m.ID] = m
	}
}

// LookupMessage 按 ID 查字段级文案
func LookupMessage(id string) (Message, bool) {
	m, ok := fieldMessages[id]
	return m, ok
}
