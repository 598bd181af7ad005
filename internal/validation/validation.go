package validation

import (
	"net/mail"
	"strings"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

// FieldError names a single violated constraint on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects every violated constraint of a request so callers get a
// complete report instead of the first failure.
type Errors struct {
	Fields []FieldError `json:"errors"`
}

func (e *Errors) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *Errors) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *Errors) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

type RegistrationInput struct {
	Email    string
	Username string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type ForgotPasswordInput struct {
	Email string
}

type ResetPasswordInput struct {
	Token    string
	Password string
}

func ValidateRegistration(in RegistrationInput) error {
	errs := &Errors{}
	if !validEmail(in.Email) {
		errs.add("email", "invalid email format")
	}
	if len(in.Username) < minUsernameLength {
		errs.add("username", "username must be at least 3 chars")
	}
	if len(in.Password) < minPasswordLength {
		errs.add("password", "password must be at least 6 chars")
	}
	return errs.orNil()
}

func ValidateLogin(in LoginInput) error {
	errs := &Errors{}
	if len(in.Username) < minUsernameLength {
		errs.add("username", "username must be at least 3 chars")
	}
	if len(in.Password) < minPasswordLength {
		errs.add("password", "password must be at least 6 chars")
	}
	return errs.orNil()
}

func ValidateForgotPassword(in ForgotPasswordInput) error {
	errs := &Errors{}
	if !validEmail(in.Email) {
		errs.add("email", "invalid email format")
	}
	return errs.orNil()
}

func ValidateResetPassword(in ResetPasswordInput) error {
	errs := &Errors{}
	if strings.TrimSpace(in.Token) == "" {
		errs.add("token", "token is required")
	}
	if len(in.Password) < minPasswordLength {
		errs.add("password", "password must be at least 6 chars")
	}
	return errs.orNil()
}

func validEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	// require a dotted domain, mail.ParseAddress accepts bare hosts
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
