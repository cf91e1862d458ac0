// Package browser starts or attaches to the Chromium instance the form
// filler drives.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VenkatGGG/formfill/internal/cdp"
)

type Kind string

const (
	KindChromium Kind = "chromium"
	KindRemote   Kind = "remote"
)

const (
	defaultStartTimeout = 20 * time.Second
	shutdownGrace       = 5 * time.Second
)

var chromeCandidates = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

type Options struct {
	Kind       Kind
	Headless   bool
	ProfileDir string
	ChromePath string

	// CDPURL is the DevTools endpoint of an already running browser, used
	// with KindRemote.
	CDPURL string

	StartTimeout time.Duration
	Logger       *slog.Logger
}

// Open returns a page on a freshly launched persistent-profile Chromium, or
// on the remote browser at CDPURL. Closing the page of a launched browser
// shuts the browser down; a remote browser is only detached from.
func Open(ctx context.Context, opts Options) (*cdp.Page, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Kind {
	case KindRemote:
		client, err := cdp.Dial(ctx, opts.CDPURL)
		if err != nil {
			return nil, fmt.Errorf("attach to %s: %w", opts.CDPURL, err)
		}
		logger.Info("attached to remote browser", "endpoint", opts.CDPURL)
		return cdp.NewPage(client, nil, logger), nil
	case KindChromium, "":
		return launchChromium(ctx, opts, logger)
	default:
		return nil, fmt.Errorf("unsupported browser %q", opts.Kind)
	}
}

func launchChromium(ctx context.Context, opts Options, logger *slog.Logger) (*cdp.Page, error) {
	executable, err := findExecutable(opts.ChromePath)
	if err != nil {
		return nil, err
	}
	profileDir, err := ResolveProfileDir(opts.ProfileDir)
	if err != nil {
		return nil, err
	}
	port, err := freePort()
	if err != nil {
		return nil, err
	}

	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--user-data-dir=" + profileDir,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, "about:blank")

	// Not bound to ctx: a browser left open must outlive the run.
	cmd := exec.Command(executable, args...)
	var stderr lockedBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", executable, err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	logger.Info("launched browser", "executable", executable, "profile_dir", profileDir, "headless", opts.Headless, "pid", cmd.Process.Pid)

	release := func(ctx context.Context) error {
		return stop(ctx, cmd, exited)
	}

	endpoint := "http://127.0.0.1:" + strconv.Itoa(port)
	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	if err := waitForEndpoint(ctx, endpoint, timeout, exited); err != nil {
		_ = release(context.Background())
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}

	client, err := cdp.Dial(ctx, endpoint)
	if err != nil {
		_ = release(context.Background())
		return nil, err
	}
	return cdp.NewPage(client, release, logger), nil
}

// ResolveProfileDir makes dir absolute and creates it. Blank means
// ~/.jphw/chromium-profile.
func ResolveProfileDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".jphw", "chromium-profile")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve profile dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	return abs, nil
}

func findExecutable(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("chrome executable %q: %w", explicit, err)
		}
		return path, nil
	}
	for _, candidate := range chromeCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no chromium executable found; set FORMFILL_CHROME_PATH")
}

func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("reserve debugging port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForEndpoint polls the DevTools version endpoint until it answers, the
// process exits, or timeout elapses.
func waitForEndpoint(ctx context.Context, endpoint string, timeout time.Duration, exited <-chan error) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(waitCtx, http.MethodGet, endpoint+"/json/version", nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case err := <-exited:
			if err == nil {
				err = errors.New("exited")
			}
			return fmt.Errorf("browser exited before devtools was ready: %w", err)
		case <-waitCtx.Done():
			return fmt.Errorf("devtools endpoint %s not ready after %s", endpoint, timeout)
		case <-ticker.C:
		}
	}
}

// stop asks the browser to exit and kills it after a grace period.
func stop(ctx context.Context, cmd *exec.Cmd, exited <-chan error) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return cmd.Process.Kill()
	}
	timer := time.NewTimer(shutdownGrace)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill browser: %w", err)
	}
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
