package artifact

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteBase64PersistsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shots", "1.png")
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	if err := WriteBase64(path, "data:image/png;base64,"+payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(raw) != "png-bytes" {
		t.Fatalf("unexpected bytes: %q", string(raw))
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected tmp file to be gone, stat err=%v", err)
	}
}

func TestWriteBase64RejectsBadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	if err := WriteBase64(path, "%%%"); err == nil {
		t.Fatal("expected decode error")
	}
	if err := WriteBase64(path, "  "); err == nil {
		t.Fatal("expected error for blank payload")
	}
}

func TestScreenshotStoreNamesByUnixMillis(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screens")
	store := NewScreenshotStore(dir)
	store.now = func() time.Time { return time.UnixMilli(1700000000123) }

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to be created, err=%v", err)
	}
	if got, want := store.NextPath(), filepath.Join(dir, "1700000000123.png"); got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestScreenshotStoreDefaultsUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store := NewScreenshotStore("")
	if !strings.HasPrefix(store.Dir(), filepath.Join(home, ".jphw", "screenshot")) {
		t.Fatalf("unexpected default dir %q", store.Dir())
	}
}

func TestScreenshotStoreSwallowsMkdirFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	store := NewScreenshotStore(filepath.Join(blocker, "sub"))
	if store.Dir() != filepath.Join(blocker, "sub") {
		t.Fatalf("unexpected dir %q", store.Dir())
	}
}
