// Package iva is a small Go client for the IVA-Bank HTTP API. It has no
// dependencies beyond the standard library so it can be vendored into
// front-end tooling and integration tests.
package iva

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Chat turns run several model calls, so it is generous.
const DefaultHTTPTimeout = 2 * time.Minute

// ErrNoToken is returned by authenticated calls before Login succeeds.
var ErrNoToken = errors.New("iva: access token is not set")

// Client wraps the HTTP interactions with the IVA-Bank API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Registration is the payload of POST /register.
type Registration struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	RegistrationNumber string `json:"registration_number"`
}

// User is the signed-in customer returned by Login.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Token represents an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	User        User   `json:"user"`
}

// ChatReply is the assistant's answer to a chat message.
type ChatReply struct {
	Response string `json:"response"`
	Route    string `json:"route,omitempty"`
}

// VoiceReply is the result of a voice round trip.
type VoiceReply struct {
	UserText     string `json:"user_text"`
	ResponseText string `json:"response_text"`
	AudioURL     string `json:"audio_url"`
}

// Account is a customer account as listed by GET /accounts.
type Account struct {
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	Balance       string `json:"balance"`
}

// APIError represents a non-2xx response. Detail carries the server message.
type APIError struct {
	StatusCode int
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("iva api error (%d): %s", e.StatusCode, e.Detail)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// NewClient instantiates a client for the IVA-Bank API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Register creates a customer. It does not sign in.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.postJSON(ctx, "/register", reg, nil, false)
}

// Login signs in with the OAuth2 password form and stores the token for
// subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (Token, error) {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := c.newRequest(ctx, http.MethodPost, "/login", strings.NewReader(form.Encode()), false)
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var token Token
	if err := c.do(req, &token); err != nil {
		return Token{}, err
	}
	c.SetAccessToken(token.AccessToken)
	return token, nil
}

// Chat sends a message as the signed-in customer.
func (c *Client) Chat(ctx context.Context, message string) (ChatReply, error) {
	var reply ChatReply
	err := c.postJSON(ctx, "/chat", map[string]string{"message": message}, &reply, true)
	return reply, err
}

// GuestChat sends a message without signing in; the server routes it to
// onboarding.
func (c *Client) GuestChat(ctx context.Context, message string) (ChatReply, error) {
	var reply ChatReply
	err := c.postJSON(ctx, "/chat/guest", map[string]string{"message": message}, &reply, false)
	return reply, err
}

// Voice uploads a recording and returns the transcript, the answer and the
// URL of the synthesized reply.
func (c *Client) Voice(ctx context.Context, filename string, audio io.Reader) (VoiceReply, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return VoiceReply{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return VoiceReply{}, fmt.Errorf("copy audio: %w", err)
	}
	if err := form.Close(); err != nil {
		return VoiceReply{}, fmt.Errorf("close form: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/voice", &body, true)
	if err != nil {
		return VoiceReply{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	var reply VoiceReply
	if err := c.do(req, &reply); err != nil {
		return VoiceReply{}, err
	}
	return reply, nil
}

// Accounts lists the signed-in customer's accounts.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.get(ctx, "/accounts", &out, true); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// Health reports whether the API is up.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &out, false); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("iva: unexpected health status %q", out.Status)
	}
	return nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any, withAuth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body), withAuth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any, withAuth bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, withAuth)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, withAuth bool) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if withAuth {
		token := c.AccessToken()
		if token == "" {
			return nil, ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Detail == "" {
			apiErr.Detail = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
