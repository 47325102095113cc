package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(t *testing.T, opts ...Option) (*Service, *bank.MemoryStore) {
	t.Helper()
	store := bank.NewMemoryStore()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	svc, err := NewService(Config{Secret: "test-secret", Issuer: "iva-bank"}, store, opts...)
	if err != nil {
		t.Fatalf("NewService 返回错误: %v", err)
	}
	return svc, store
}

func validRegistration() RegisterRequest {
	return RegisterRequest{
		FirstName:          "Ada",
		LastName:           "Lovelace",
		Email:              "Ada@Example.com",
		Password:           "s3cret-pass",
		RegistrationNumber: "REG-001",
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(Config{}, bank.NewMemoryStore()); !xerrors.IsCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}

func TestRegisterCreatesAuthenticatedCustomer(t *testing.T) {
	pub := &recordingPublisher{}
	svc, store := newTestService(t, WithPublisher(pub))

	customer, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register 返回错误: %v", err)
	}
	if customer.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected full name %q", customer.FullName)
	}
	if !customer.IsAuthenticated {
		t.Fatalf("registered customer should be authenticated")
	}
	stored, err := store.FindCustomerByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("customer not persisted: %v", err)
	}
	if stored.HashedPassword == "" || stored.HashedPassword == "s3cret-pass" {
		t.Fatalf("password was not hashed")
	}
	accounts, err := store.ListAccounts(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("ListAccounts 返回错误: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("registration should not open accounts, got %d", len(accounts))
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeCustomerRegistered {
		t.Fatalf("expected one registration event, got %+v", pub.events)
	}
	if pub.events[0].CustomerEmail != "ada@example.com" || pub.events[0].CustomerName != "Ada" {
		t.Fatalf("unexpected event recipient %+v", pub.events[0])
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("first Register 返回错误: %v", err)
	}
	again := validRegistration()
	again.Email = "ada@example.com"
	again.RegistrationNumber = "REG-002"
	_, err := svc.Register(context.Background(), again)
	if !xerrors.IsCode(err, bank.CodeEmailTaken) {
		t.Fatalf("expected EMAIL_TAKEN, got %v", err)
	}
	if xerrors.MessageOf(err) != "Email already registered" {
		t.Fatalf("unexpected message %q", xerrors.MessageOf(err))
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := map[string]func(*RegisterRequest){
		"missing first name": func(r *RegisterRequest) { r.FirstName = " " },
		"bad email":          func(r *RegisterRequest) { r.Email = "not-an-email" },
		"empty password":     func(r *RegisterRequest) { r.Password = "" },
		"no registration":    func(r *RegisterRequest) { r.RegistrationNumber = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRegistration()
			mutate(&req)
			if _, err := svc.Register(context.Background(), req); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestLoginIssuesToken(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("Register 返回错误: %v", err)
	}

	token, err := svc.Login(context.Background(), LoginRequest{Username: "ADA@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login 返回错误: %v", err)
	}
	if token.TokenType != "bearer" {
		t.Fatalf("unexpected token type %q", token.TokenType)
	}
	if token.User.Name != "Ada Lovelace" || token.User.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", token.User)
	}
	email, err := svc.ParseToken(token.AccessToken)
	if err != nil {
		t.Fatalf("ParseToken 返回错误: %v", err)
	}
	if email != "ada@example.com" {
		t.Fatalf("unexpected subject %q", email)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, store := newTestService(t)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("Register 返回错误: %v", err)
	}
	// 申请产品时创建的占位客户没有密码。
	if err := store.CreateCustomer(context.Background(), &bank.Customer{Email: "guest@example.com", FullName: "Guest"}); err != nil {
		t.Fatalf("CreateCustomer 返回错误: %v", err)
	}

	for _, req := range []LoginRequest{
		{Username: "ada@example.com", Password: "wrong"},
		{Username: "nobody@example.com", Password: "s3cret-pass"},
		{Username: "guest@example.com", Password: "anything"},
		{Username: "", Password: ""},
	} {
		_, err := svc.Login(context.Background(), req)
		if xerrors.MessageOf(err) != "Incorrect email or password" {
			t.Fatalf("login %q: expected credential error, got %v", req.Username, err)
		}
	}
}

func TestLoginAcceptsEmailField(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("Register 返回错误: %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "s3cret-pass"}); err != nil {
		t.Fatalf("Login with email field 返回错误: %v", err)
	}
}

func TestPasswordTruncatedTo72Bytes(t *testing.T) {
	svc, _ := newTestService(t)
	req := validRegistration()
	req.Password = strings.Repeat("a", 72) + "tail-one"
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("Register 返回错误: %v", err)
	}
	login := LoginRequest{Username: req.Email, Password: strings.Repeat("a", 72) + "tail-two"}
	if _, err := svc.Login(context.Background(), login); err != nil {
		t.Fatalf("bytes beyond 72 should be ignored: %v", err)
	}
}

func TestParseTokenRejectsInvalidTokens(t *testing.T) {
	svc, _ := newTestService(t)

	past := time.Now().Add(-3 * time.Hour)
	expiredSvc, _ := newTestService(t, WithClock(func() time.Time { return past }))
	expired, err := expiredSvc.IssueToken("ada@example.com")
	if err != nil {
		t.Fatalf("IssueToken 返回错误: %v", err)
	}

	other, err := NewService(Config{Secret: "another-secret", Issuer: "iva-bank"}, bank.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewService 返回错误: %v", err)
	}
	forged, err := other.IssueToken("ada@example.com")
	if err != nil {
		t.Fatalf("IssueToken 返回错误: %v", err)
	}

	wrongIssuer, err := NewService(Config{Secret: "test-secret", Issuer: "someone-else"}, bank.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewService 返回错误: %v", err)
	}
	foreign, err := wrongIssuer.IssueToken("ada@example.com")
	if err != nil {
		t.Fatalf("IssueToken 返回错误: %v", err)
	}

	for name, token := range map[string]string{
		"expired": expired,
		"forged":  forged,
		"issuer":  foreign,
		"garbage": "not.a.token",
	} {
		if _, err := svc.ParseToken(token); !xerrors.IsCode(err, xerrors.CodeUnauthenticated) {
			t.Fatalf("%s: expected UNAUTHENTICATED, got %v", name, err)
		}
	}
}

func TestAuthenticateRequest(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("Register 返回错误: %v", err)
	}
	token, err := svc.IssueToken("ada@example.com")
	if err != nil {
		t.Fatalf("IssueToken 返回错误: %v", err)
	}

	customer, err := svc.AuthenticateRequest(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("AuthenticateRequest 返回错误: %v", err)
	}
	if customer.Email != "ada@example.com" {
		t.Fatalf("unexpected customer %+v", customer)
	}

	ghost, err := svc.IssueToken("ghost@example.com")
	if err != nil {
		t.Fatalf("IssueToken 返回错误: %v", err)
	}
	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer " + ghost} {
		if _, err := svc.AuthenticateRequest(context.Background(), header); !xerrors.IsCode(err, xerrors.CodeUnauthenticated) {
			t.Fatalf("header %q: expected UNAUTHENTICATED, got %v", header, err)
		}
	}
}
