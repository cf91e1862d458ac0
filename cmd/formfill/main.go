package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/VenkatGGG/formfill/internal/answerclient"
	"github.com/VenkatGGG/formfill/internal/artifact"
	"github.com/VenkatGGG/formfill/internal/autofill"
	"github.com/VenkatGGG/formfill/internal/browser"
	"github.com/VenkatGGG/formfill/internal/config"
	"github.com/VenkatGGG/formfill/internal/confirm"
	"github.com/VenkatGGG/formfill/internal/credentials"
	"github.com/VenkatGGG/formfill/internal/formpage"
	"github.com/VenkatGGG/formfill/internal/retry"
	"github.com/VenkatGGG/formfill/internal/traversal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "formfill [url]",
		Short:         "Fill in a quiz form using stored credentials and the answer server",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			return fill(cmd.Context(), cfg, url)
		},
	}

	pf := root.PersistentFlags()
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("credentials-file", "", "credentials JSON file (default ~/.jphw/credentials.json)")

	fl := root.Flags()
	fl.String("server", "", "answer server base URL")
	fl.Bool("headless", false, "run the browser without a window")
	fl.String("browser", "", "browser to drive: chromium or remote")
	fl.String("profile-dir", "", "persistent browser profile directory")
	fl.String("screenshot-dir", "", "directory for score screenshots")
	fl.String("confirm", "", "confirmation policy: always, except-submit or interactive")
	fl.BoolP("yes", "y", false, "approve every step (same as --confirm=always)")
	fl.String("chrome-path", "", "chromium executable")
	fl.String("cdp-url", "", "DevTools endpoint of a running browser (with --browser=remote)")

	root.AddCommand(newCredentialsCommand())
	return root
}

func newCredentialsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "credentials",
		Short: "Enter or update the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			current, _ := credentials.Load(cfg.CredentialsFile)
			if _, err := credentials.Reprompt(cmd.Context(), cfg.CredentialsFile, credentials.FormPrompter{}, current); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s\n", cfg.CredentialsFile)
			return nil
		},
	}
}

// loadConfig layers the flags the user actually set over file and
// environment.
func loadConfig(cmd *cobra.Command) (config.Client, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Client{}, err
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return config.Client{}, err
	}
	cfg = applyFlags(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return config.Client{}, err
	}
	return cfg, nil
}

func applyFlags(cfg config.Client, fs *pflag.FlagSet) config.Client {
	str := func(name string, dst *string) {
		if flag := fs.Lookup(name); flag != nil && flag.Changed {
			*dst = flag.Value.String()
		}
	}
	str("server", &cfg.ServerURL)
	str("browser", &cfg.Browser)
	str("profile-dir", &cfg.ProfileDir)
	str("screenshot-dir", &cfg.ScreenshotDir)
	str("confirm", &cfg.Confirm)
	str("chrome-path", &cfg.ChromePath)
	str("cdp-url", &cfg.CDPURL)
	str("credentials-file", &cfg.CredentialsFile)
	cfg.Browser = strings.ToLower(cfg.Browser)
	cfg.Confirm = strings.ToLower(cfg.Confirm)

	if flag := fs.Lookup("headless"); flag != nil && flag.Changed {
		cfg.Headless, _ = fs.GetBool("headless")
	}
	if yes, _ := fs.GetBool("yes"); yes {
		cfg.Confirm = string(confirm.ModeAlways)
	}
	return cfg
}

func fill(ctx context.Context, cfg config.Client, url string) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	url, err := resolveURL(ctx, url)
	if err != nil {
		return err
	}

	creds, err := credentials.Ensure(ctx, cfg.CredentialsFile, credentials.FormPrompter{})
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	mode, err := confirm.ParseMode(cfg.Confirm)
	if err != nil {
		return err
	}
	gateway, err := confirm.New(mode)
	if err != nil {
		return err
	}

	page, err := browser.Open(ctx, browser.Options{
		Kind:       browser.Kind(cfg.Browser),
		Headless:   cfg.Headless,
		ProfileDir: cfg.ProfileDir,
		ChromePath: cfg.ChromePath,
		CDPURL:     cfg.CDPURL,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}

	widgets := formpage.Widgets{Policy: retry.DefaultPolicy(), Logger: logger}
	controller, err := traversal.New(traversal.Options{
		Page:        page,
		Answers:     answerclient.New(answerclient.Options{BaseURL: cfg.ServerURL, APIKey: cfg.AnswerAPIKey}),
		Confirm:     gateway,
		Resolver:    autofill.NewResolver(creds, widgets, logger),
		Widgets:     widgets,
		Screenshots: artifact.NewScreenshotStore(cfg.ScreenshotDir),
		Logger:      logger,
	})
	if err != nil {
		_ = page.Close(context.WithoutCancel(ctx))
		return err
	}

	logger.Info("using answer server", "url", cfg.ServerURL)
	result, err := controller.Run(ctx, url)
	if err != nil {
		return err
	}
	logger.Info("run finished", "run_id", result.RunID, "state", string(result.State), "pages", result.Pages, "screenshot", result.Screenshot)
	return nil
}

func resolveURL(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url != "" {
		return url, nil
	}
	field := huh.NewInput().
		Title("Please enter the URL of the form:").
		Value(&url).
		Validate(func(value string) error {
			if strings.TrimSpace(value) == "" {
				return errors.New("a form URL is required")
			}
			return nil
		})
	if err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx); err != nil {
		return "", fmt.Errorf("prompt url: %w", err)
	}
	return strings.TrimSpace(url), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
