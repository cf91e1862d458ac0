package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// Prompter asks the operator for credentials.
type Prompter interface {
	Prompt(ctx context.Context, current Credentials) (Credentials, error)
}

// FormPrompter prompts on the terminal.
type FormPrompter struct{}

func (FormPrompter) Prompt(ctx context.Context, current Credentials) (Credentials, error) {
	creds := current
	required := func(field string) func(string) error {
		return func(value string) error {
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(&creds.Email).Validate(func(value string) error {
			if err := validate.Var(strings.TrimSpace(value), "required,email"); err != nil {
				return errors.New("enter a valid email address")
			}
			return nil
		}),
		huh.NewInput().Title("Class").Description("e.g. M1, C2, E1").Value(&creds.Class).Validate(required("class")),
		huh.NewInput().Title("Student ID").Value(&creds.ID).Validate(required("id")),
		huh.NewInput().Title("Name").Value(&creds.Name).Validate(required("name")),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return Credentials{}, fmt.Errorf("prompt credentials: %w", err)
	}
	return creds.trimmed(), nil
}

// Ensure loads credentials from path, prompting and saving when the file is
// missing or invalid.
func Ensure(ctx context.Context, path string, prompter Prompter) (Credentials, error) {
	creds, err := Load(path)
	if err == nil {
		return creds, nil
	}
	if prompter == nil {
		return Credentials{}, err
	}
	return Reprompt(ctx, path, prompter, Credentials{})
}

// Reprompt asks again starting from current and rewrites the file.
func Reprompt(ctx context.Context, path string, prompter Prompter, current Credentials) (Credentials, error) {
	creds, err := prompter.Prompt(ctx, current)
	if err != nil {
		return Credentials{}, err
	}
	if err := Save(path, creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
