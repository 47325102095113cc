// Package speech wraps the voice round trip of the assistant: speech-to-text
// for uploaded recordings, text-to-speech for replies and a small on-disk store
// that serves the generated audio back to clients.
package speech

import (
	"context"
	"strings"

	xerrors "IVA-Bank/internal/errors"
)

// NoSpeechDetected 是转写结果为空时交给助手的占位文本。
const NoSpeechDetected = "[No speech detected]"

// ErrEmptyAudio 在上传内容为空时返回。
var ErrEmptyAudio = xerrors.New(xerrors.CodeInvalidArgument, "Empty audio file received")

// Transcriber 将音频转写为文本。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer 将文本合成为音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Engine 同时具备转写与合成能力。
type Engine interface {
	Transcriber
	Synthesizer
}

// NormalizeTranscript 清理转写文本，空结果替换为占位符。
func NormalizeTranscript(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return NoSpeechDetected
	}
	return text
}
