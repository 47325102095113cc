package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xerrors "IVA-Bank/internal/errors"
)

func TestTranscribeUploadsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "RIFF" || header.Filename != "clip.wav" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		if r.FormValue("model") != "whisper-1" {
			t.Errorf("unexpected model %q", r.FormValue("model"))
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " What is my balance? "})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL + "/v1"})
	text, err := client.Transcribe(context.Background(), []byte("RIFF"), "../clip.wav")
	if err != nil {
		t.Fatalf("Transcribe 返回错误: %v", err)
	}
	if NormalizeTranscript(text) != "What is my balance?" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := client.Transcribe(context.Background(), nil, "a.wav"); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSynthesizeSendsVoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["voice"] != "nova" || payload["input"] != "Hello" || payload["model"] != "tts-1" {
			t.Errorf("unexpected payload %+v", payload)
		}
		_, _ = w.Write([]byte("ID3"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Voice: "nova"})
	audio, err := client.Synthesize(context.Background(), "Hello", "")
	if err != nil {
		t.Fatalf("Synthesize 返回错误: %v", err)
	}
	if string(audio) != "ID3" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestUpstreamErrorIsCoded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Synthesize(context.Background(), "Hello", "alloy")
	if !xerrors.IsCode(err, xerrors.CodeUpstreamFailure) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("status missing from error: %v", err)
	}
}

func TestNormalizeTranscriptPlaceholder(t *testing.T) {
	if got := NormalizeTranscript("  \n "); got != NoSpeechDetected {
		t.Fatalf("expected placeholder, got %q", got)
	}
}

func TestAudioStoreSaveAndPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewAudioStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("NewAudioStore 返回错误: %v", err)
	}
	name, err := store.Save([]byte("ID3"))
	if err != nil {
		t.Fatalf("Save 返回错误: %v", err)
	}
	if !strings.HasSuffix(name, "_out.mp3") {
		t.Fatalf("unexpected name %q", name)
	}
	if URL(name) != "/audio/"+name {
		t.Fatalf("unexpected url %q", URL(name))
	}
	path, err := store.Path(name)
	if err != nil {
		t.Fatalf("Path 返回错误: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "ID3" {
		t.Fatalf("unexpected content %q (%v)", data, err)
	}
}

func TestAudioStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	store, err := NewAudioStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("NewAudioStore 返回错误: %v", err)
	}
	for _, name := range []string{"../secret.txt", "..", "", ".hidden", "missing.mp3", `..\secret.txt`} {
		if _, err := store.Path(name); !xerrors.IsCode(err, xerrors.CodeNotFound) {
			t.Fatalf("%q: expected not found, got %v", name, err)
		}
	}
}
