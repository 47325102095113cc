package auth

import (
	"strings"
	"time"

	xerrors "IVA-Bank/internal/errors"
)

// Common errors returned by the authentication subsystem. 令牌相关错误统一使用
// UNAUTHENTICATED，API 层据此返回 401。
var (
	ErrInvalidCredentials = xerrors.New(xerrors.CodeInvalidArgument, "Incorrect email or password")
	ErrInvalidToken       = xerrors.New(xerrors.CodeUnauthenticated, "Could not validate credentials")
	ErrMissingToken       = xerrors.New(xerrors.CodeUnauthenticated, "Could not validate credentials", xerrors.WithMetadata("reason", "missing bearer token"))
)

// TokenType 是签发令牌的类型标识。
const TokenType = "bearer"

// DefaultTokenTTL 是访问令牌的默认有效期。
const DefaultTokenTTL = 60 * time.Minute

// Config configures the authentication service.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// RegisterRequest describes the payload accepted by POST /register.
type RegisterRequest struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	RegistrationNumber string `json:"registration_number"`
}

// Validate 检查注册字段。
func (r RegisterRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "First and last name are required")
	}
	if !validEmail(r.Email) {
		return xerrors.New(xerrors.CodeInvalidArgument, "A valid email address is required")
	}
	if r.Password == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "Password is required")
	}
	if strings.TrimSpace(r.RegistrationNumber) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "Registration number is required")
	}
	return nil
}

// LoginRequest carries the OAuth2 password grant fields. Username is the email.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identity 返回登录使用的邮箱，兼容 username 与 email 两种字段。
func (r LoginRequest) Identity() string {
	if strings.TrimSpace(r.Username) != "" {
		return r.Username
	}
	return r.Email
}

// UserInfo is the public view of the signed-in customer.
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Token is the response body of a successful login.
type Token struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in,omitempty"`
	User        UserInfo `json:"user"`
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
