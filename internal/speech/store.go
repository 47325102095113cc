package speech

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	xerrors "IVA-Bank/internal/errors"
)

// ErrAudioNotFound 在请求的音频不存在或文件名非法时返回。
var ErrAudioNotFound = xerrors.New(xerrors.CodeNotFound, "Audio file not found")

// AudioStore 把合成的回复写入上传目录，并只按纯文件名提供读取。
type AudioStore struct {
	dir string
}

// NewAudioStore 创建目录并返回存储。
func NewAudioStore(dir string) (*AudioStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "音频目录未配置")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建音频目录失败")
	}
	return &AudioStore{dir: dir}, nil
}

// Dir 返回存储目录。
func (s *AudioStore) Dir() string { return s.dir }

// Save 写入 <uuid>_out.mp3 并返回文件名。
func (s *AudioStore) Save(audio []byte) (string, error) {
	name := uuid.NewString() + "_out.mp3"
	if err := os.WriteFile(filepath.Join(s.dir, name), audio, 0o644); err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存音频失败")
	}
	return name, nil
}

// Path 校验文件名并返回其完整路径。带目录成分的名称一律视为不存在。
func (s *AudioStore) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", ErrAudioNotFound
	}
	full := filepath.Join(s.dir, name)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", ErrAudioNotFound
	}
	return full, nil
}

// URL 返回 API 暴露的音频路径。
func URL(name string) string {
	return "/audio/" + name
}
