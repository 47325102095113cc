package auth

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/events"
	loggerpkg "IVA-Bank/pkg/logger"
)

// Service 负责客户注册、登录与访问令牌校验。
type Service struct {
	store     bank.CustomerStore
	publisher events.Publisher
	secret    []byte
	issuer    string
	ttl       time.Duration
	cost      int
	now       func() time.Time
	audit     *slog.Logger
}

// Option 自定义 Service。
type Option func(*Service)

// WithPublisher 设置注册成功后发布事件的目标。
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithAuditLogger 覆盖默认的审计日志。
func WithAuditLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.audit = logger
		}
	}
}

// WithBcryptCost 设置密码哈希成本。
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost > 0 {
			s.cost = cost
		}
	}
}

// WithClock 替换签发令牌使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 创建认证服务。密钥为空时返回错误。
func NewService(cfg Config, store bank.CustomerStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "auth 需要客户存储")
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "auth secret 未配置")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &Service{
		store:     store,
		publisher: events.Discard{},
		secret:    []byte(cfg.Secret),
		issuer:    strings.TrimSpace(cfg.Issuer),
		ttl:       ttl,
		cost:      defaultCost,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Service) auditLogger() *slog.Logger {
	if s.audit != nil {
		return s.audit
	}
	return loggerpkg.Audit()
}

// Register 创建已认证客户并发布欢迎事件。注册不会自动开户。
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*bank.Customer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hashed, err := hashPassword(req.Password, s.cost)
	if err != nil {
		return nil, err
	}
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	customer := &bank.Customer{
		FirstName:          first,
		LastName:           last,
		FullName:           first + " " + last,
		Email:              bank.NormalizeEmail(req.Email),
		HashedPassword:     hashed,
		RegistrationNumber: strings.TrimSpace(req.RegistrationNumber),
		IsAuthenticated:    true,
	}
	if err := s.store.CreateCustomer(ctx, customer); err != nil {
		return nil, err
	}

	s.auditLogger().Info("customer_registered",
		"customer_id", customer.ID,
		"email", customer.Email,
	)
	event := events.New(events.TypeCustomerRegistered, customer.Email, first, map[string]string{
		"customer_id": strconv.FormatInt(customer.ID, 10),
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		// 注册已落库，通知失败只记录。
		loggerpkg.L().Warn("发布注册事件失败", "email", customer.Email, "error", err)
	}
	return customer, nil
}

// Login 校验邮箱与密码并签发访问令牌。
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Token, error) {
	email := bank.NormalizeEmail(req.Identity())
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	customer, err := s.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		if xerrors.IsCode(err, bank.CodeCustomerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if customer.HashedPassword == "" || !verifyPassword(customer.HashedPassword, req.Password) {
		return nil, ErrInvalidCredentials
	}
	access, err := s.IssueToken(customer.Email)
	if err != nil {
		return nil, err
	}
	return &Token{
		AccessToken: access,
		TokenType:   TokenType,
		ExpiresIn:   int64(s.ttl.Seconds()),
		User:        UserInfo{Name: customer.DisplayName(), Email: customer.Email},
	}, nil
}

// IssueToken 为邮箱签发 HS256 令牌，sub 为邮箱。
func (s *Service) IssueToken(email string) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   bank.NormalizeEmail(email),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "签发令牌失败")
	}
	return signed, nil
}

// ParseToken 校验令牌并返回其中的邮箱。
func (s *Service) ParseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// AuthenticateRequest 解析 Authorization 头并加载对应客户。
func (s *Service) AuthenticateRequest(ctx context.Context, authorization string) (*bank.Customer, error) {
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return nil, ErrMissingToken
	}
	email, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	customer, err := s.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		if xerrors.IsCode(err, bank.CodeCustomerNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return customer, nil
}
