package artifact

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ScreenshotStore names score screenshots inside one directory.
type ScreenshotStore struct {
	dir string
	now func() time.Time
}

// NewScreenshotStore uses dir, or ~/.jphw/screenshot when dir is blank. The
// directory is created eagerly; failing to create it is not an error here,
// the screenshot write reports it later.
func NewScreenshotStore(dir string) *ScreenshotStore {
	root := ScreenshotDirFromEnv(dir)
	_ = os.MkdirAll(root, 0o755)
	return &ScreenshotStore{dir: root, now: time.Now}
}

func (s *ScreenshotStore) Dir() string {
	return s.dir
}

// NextPath returns <dir>/<unix-ms>.png.
func (s *ScreenshotStore) NextPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.png", s.now().UnixMilli()))
}

func ScreenshotDirFromEnv(value string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "jphw-screenshot")
	}
	return filepath.Join(home, ".jphw", "screenshot")
}

// WriteBase64 decodes payload (raw base64 or a data URL) and writes it to
// path through a temp file and rename.
func WriteBase64(path, payload string) error {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return errors.New("payload is required")
	}
	decoded, err := decodeBase64(trimmed)
	if err != nil {
		return err
	}
	return WriteFile(path, decoded)
}

func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write artifact tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit artifact: %w", err)
	}
	return nil
}

func decodeBase64(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		parts := strings.SplitN(payload, ",", 2)
		if len(parts) != 2 {
			return nil, errors.New("invalid data url payload")
		}
		payload = parts[1]
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	if len(decoded) == 0 {
		return nil, errors.New("decoded payload is empty")
	}
	return decoded, nil
}
