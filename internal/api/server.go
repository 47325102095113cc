package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"IVA-Bank/internal/agent"
	"IVA-Bank/internal/auth"
	"IVA-Bank/internal/bank"
	"IVA-Bank/internal/speech"
	loggerpkg "IVA-Bank/pkg/logger"
)

const defaultMaxUploadBytes = 25 << 20

// QueryProcessor 是 HTTP 层依赖的助手入口。
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, q agent.Query) (*agent.Reply, error)
}

// Server 负责暴露 REST 接口，供前端驱动银行助手。
type Server struct {
	addr            string
	assistant       QueryProcessor
	auth            *auth.Service
	accounts        bank.AccountStore
	applications    bank.ApplicationStore
	transcriber     speech.Transcriber
	synthesizer     speech.Synthesizer
	audio           *speech.AudioStore
	voice           string
	allowedOrigins  []string
	maxUploadBytes  int64
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option 自定义 Server。
type Option func(*Server)

// WithAccounts 启用 GET /accounts 与账户流水查询。
func WithAccounts(store bank.AccountStore) Option {
	return func(s *Server) {
		s.accounts = store
	}
}

// WithApplications 启用 GET /applications。
func WithApplications(store bank.ApplicationStore) Option {
	return func(s *Server) {
		s.applications = store
	}
}

// WithSpeech 启用语音接口。
func WithSpeech(transcriber speech.Transcriber, synthesizer speech.Synthesizer, audio *speech.AudioStore, voice string) Option {
	return func(s *Server) {
		s.transcriber = transcriber
		s.synthesizer = synthesizer
		s.audio = audio
		s.voice = voice
	}
}

// WithAllowedOrigins 设置 CORS 允许的来源，默认允许全部。
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithMaxUploadBytes 限制语音上传大小。
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger 覆盖默认日志。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, assistant QueryProcessor, authSvc *auth.Service, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		assistant:       assistant,
		auth:            authSvc,
		allowedOrigins:  []string{"*"},
		maxUploadBytes:  defaultMaxUploadBytes,
		shutdownTimeout: 5 * time.Second,
		logger:          loggerpkg.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 构建完整的路由与中间件链。
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/chat/guest", s.handleGuestChat).Methods(http.MethodPost)
	r.HandleFunc("/audio/{filename}", s.handleAudio).Methods(http.MethodGet)

	protected := func(event string, h http.HandlerFunc) http.Handler {
		return s.auth.Middleware(auth.MiddlewareConfig{AuditEvent: event})(h)
	}
	r.Handle("/chat", protected("chat", s.handleChat)).Methods(http.MethodPost)
	r.Handle("/voice", protected("voice", s.handleVoice)).Methods(http.MethodPost)
	r.Handle("/accounts", protected("accounts", s.handleAccounts)).Methods(http.MethodGet)
	r.Handle("/accounts/{account_number}/transactions", protected("transactions", s.handleTransactions)).Methods(http.MethodGet)
	r.Handle("/applications", protected("applications", s.handleApplications)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, detail{Detail: "Not Found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, detail{Detail: "Method Not Allowed"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API 服务启动", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.logger.Info("API 服务已关闭")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeJSON(w, http.StatusServiceUnavailable, detail{Detail: "Service is shutting down"})
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
