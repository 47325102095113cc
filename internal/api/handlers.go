package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"IVA-Bank/internal/agent"
	"IVA-Bank/internal/auth"
	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
	"IVA-Bank/internal/speech"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string      `json:"response"`
	Route    agent.Route `json:"route,omitempty"`
}

type voiceResponse struct {
	UserText     string `json:"user_text"`
	ResponseText string `json:"response_text"`
	AudioURL     string `json:"audio_url"`
}

type accountView struct {
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	Balance       string `json:"balance"`
}

type transactionView struct {
	ID           int64     `json:"id"`
	Amount       string    `json:"amount"`
	Type         string    `json:"transaction_type"`
	Description  string    `json:"description"`
	IsFraudulent bool      `json:"is_fraudulent"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	defaultTransactionLimit = 20
	maxTransactionLimit     = 100
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.auth.Register(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully"})
}

// handleLogin 同时接受 OAuth2 密码表单与 JSON 请求体。
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Invalid login form"))
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	default:
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	token, err := s.auth.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	customer := auth.CustomerFromContext(r.Context())
	if customer == nil {
		s.writeError(w, r, auth.ErrInvalidToken)
		return
	}
	s.chat(w, r, customerInfo(customer), true)
}

// handleGuestChat 不要求登录，路由器据此把请求交给开户专员。
func (s *Server) handleGuestChat(w http.ResponseWriter, r *http.Request) {
	s.chat(w, r, nil, false)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request, customer *agent.CustomerInfo, authenticated bool) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.assistant.ProcessQuery(r.Context(), agent.Query{
		Text:          req.Message,
		Customer:      customer,
		Authenticated: authenticated,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply.Text, Route: reply.Route})
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil || s.synthesizer == nil || s.audio == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeInitializationFailure, "Voice service is not configured"))
		return
	}
	customer := auth.CustomerFromContext(r.Context())
	if customer == nil {
		s.writeError(w, r, auth.ErrInvalidToken)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Audio file is required"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Audio file could not be read"))
		return
	}
	if len(content) == 0 {
		s.writeError(w, r, speech.ErrEmptyAudio)
		return
	}
	s.logger.Debug("收到语音", "filename", header.Filename, "bytes", len(content))

	transcript, err := s.transcriber.Transcribe(r.Context(), content, header.Filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userText := speech.NormalizeTranscript(transcript)

	reply, err := s.assistant.ProcessQuery(r.Context(), agent.Query{
		Text:          userText,
		Customer:      customerInfo(customer),
		Authenticated: true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	audio, err := s.synthesizer.Synthesize(r.Context(), reply.Text, s.voice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := s.audio.Save(audio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, voiceResponse{
		UserText:     userText,
		ResponseText: reply.Text,
		AudioURL:     speech.URL(name),
	})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		s.writeError(w, r, speech.ErrAudioNotFound)
		return
	}
	path, err := s.audio.Path(mux.Vars(r)["filename"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeNotFound, "Accounts are not available"))
		return
	}
	customer := auth.CustomerFromContext(r.Context())
	if customer == nil {
		s.writeError(w, r, auth.ErrInvalidToken)
		return
	}
	accounts, err := s.accounts.ListAccounts(r.Context(), customer.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView{
			AccountNumber: acc.AccountNumber,
			AccountType:   acc.AccountType,
			Balance:       acc.Balance.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

// handleTransactions 返回本人账户的最近流水，他人账户按不存在处理。
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.accounts == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeNotFound, "Accounts are not available"))
		return
	}
	customer := auth.CustomerFromContext(r.Context())
	if customer == nil {
		s.writeError(w, r, auth.ErrInvalidToken)
		return
	}
	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxTransactionLimit)
	}

	account, err := s.accounts.GetAccountByNumber(r.Context(), mux.Vars(r)["account_number"])
	if err == nil && account.CustomerID != customer.ID {
		err = xerrors.New(bank.CodeAccountNotFound, "Account not found")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txs, err := s.accounts.ListTransactions(r.Context(), account.ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, transactionView{
			ID:           tx.ID,
			Amount:       tx.Amount.String(),
			Type:         string(tx.Type),
			Description:  tx.Description,
			IsFraudulent: tx.IsFraudulent,
			CreatedAt:    tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"account_number": account.AccountNumber, "transactions": views})
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	if s.applications == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeNotFound, "Applications are not available"))
		return
	}
	customer := auth.CustomerFromContext(r.Context())
	if customer == nil {
		s.writeError(w, r, auth.ErrInvalidToken)
		return
	}
	apps, err := s.applications.ListApplications(r.Context(), customer.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func customerInfo(c *bank.Customer) *agent.CustomerInfo {
	return &agent.CustomerInfo{ID: c.ID, Name: c.DisplayName(), Email: c.Email}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "Request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return xerrors.New(xerrors.CodeInvalidArgument, "Request body is required")
		}
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Invalid JSON body: "+strings.TrimSpace(err.Error()))
	}
	return nil
}
