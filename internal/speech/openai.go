package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	xerrors "IVA-Bank/internal/errors"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultSTTModel = "whisper-1"
	defaultTTSModel = "tts-1"
	defaultVoice    = "alloy"
	defaultTimeout  = 60 * time.Second
	maxErrorBody    = 4096
)

// Config 描述 OpenAI 兼容的音频接口。
type Config struct {
	APIKey   string
	BaseURL  string
	STTModel string
	TTSModel string
	Voice    string
	Timeout  time.Duration
}

// Client 通过 /audio/transcriptions 与 /audio/speech 完成语音往返。
type Client struct {
	apiKey     string
	baseURL    string
	sttModel   string
	ttsModel   string
	voice      string
	httpClient *http.Client
}

// NewClient 创建语音客户端。本地兼容服务可以不设置 APIKey。
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		sttModel:   firstNonEmpty(cfg.STTModel, defaultSTTModel),
		ttsModel:   firstNonEmpty(cfg.TTSModel, defaultTTSModel),
		voice:      firstNonEmpty(cfg.Voice, defaultVoice),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = defaultTimeout
	}
	return c
}

// Transcribe 上传音频并返回识别文本。
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		name = "audio.wav"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "构造转写请求失败")
	}
	if _, err := part.Write(audio); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "构造转写请求失败")
	}
	_ = form.WriteField("model", c.sttModel)
	_ = form.WriteField("response_format", "json")
	if err := form.Close(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "构造转写请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "创建转写请求失败")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	data, err := c.do(req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析转写响应失败")
	}
	return parsed.Text, nil
}

// Synthesize 将文本合成为 mp3 音频。voice 为空时使用配置的默认音色。
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Nothing to synthesize")
	}
	payload, err := json.Marshal(map[string]string{
		"model":           c.ttsModel,
		"input":           text,
		"voice":           firstNonEmpty(voice, c.voice),
		"response_format": "mp3",
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "序列化合成请求失败")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "创建合成请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "语音服务请求超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "调用语音服务失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("语音服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "读取语音服务响应失败")
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
