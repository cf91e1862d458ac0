// Package traversal drives one form from its first page to submission.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/VenkatGGG/formfill/internal/autofill"
	"github.com/VenkatGGG/formfill/internal/confirm"
	"github.com/VenkatGGG/formfill/internal/dom"
	"github.com/VenkatGGG/formfill/internal/formpage"
	"github.com/VenkatGGG/formfill/internal/question"
)

// State is a step of the traversal state machine.
type State string

const (
	StateCollectQuestions State = "collect_questions"
	StateClassify         State = "classify"
	StateResolveAnswers   State = "resolve_answers"
	StateApply            State = "apply"
	StateDecideAdvance    State = "decide_advance"
	StateAwaitCompletion  State = "await_completion"
	StateDecideClose      State = "decide_close"

	// Terminal states.
	StateCancelled State = "cancelled"
	StateOpen      State = "open"
	StateClosed    State = "closed"
	StateFailed    State = "failed"
)

const (
	defaultNetworkIdleTimeout = 30 * time.Second
	defaultCompletionTimeout  = 10 * time.Second
)

// AnswerSource answers a batch all-or-nothing, one answer per question in
// order.
type AnswerSource interface {
	AnswerBatch(ctx context.Context, questions []question.Payload) ([]question.Answer, error)
}

// Resolver fills questions locally. Handled questions never reach the
// AnswerSource.
type Resolver interface {
	Resolve(ctx context.Context, q formpage.Question) (bool, error)
}

type ScreenshotNamer interface {
	NextPath() string
}

type Options struct {
	Page        dom.Page
	Answers     AnswerSource
	Confirm     confirm.Gateway
	Resolver    Resolver
	Widgets     formpage.Widgets
	Screenshots ScreenshotNamer
	Logger      *slog.Logger

	NetworkIdleTimeout time.Duration
	CompletionTimeout  time.Duration
}

// Result reports how a run ended.
type Result struct {
	RunID      string
	State      State
	Pages      int
	Screenshot string
}

type Controller struct {
	page        dom.Page
	answers     AnswerSource
	confirm     confirm.Gateway
	resolver    Resolver
	widgets     formpage.Widgets
	screenshots ScreenshotNamer
	logger      *slog.Logger
	idleTimeout time.Duration
	doneTimeout time.Duration
}

func New(opts Options) (*Controller, error) {
	if opts.Page == nil {
		return nil, errors.New("page is required")
	}
	if opts.Answers == nil {
		return nil, errors.New("answer source is required")
	}
	if opts.Confirm == nil {
		return nil, errors.New("confirmation gateway is required")
	}
	if opts.Screenshots == nil {
		return nil, errors.New("screenshot namer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	widgets := opts.Widgets
	if widgets.Logger == nil {
		widgets.Logger = logger
	}
	idle := opts.NetworkIdleTimeout
	if idle <= 0 {
		idle = defaultNetworkIdleTimeout
	}
	done := opts.CompletionTimeout
	if done <= 0 {
		done = defaultCompletionTimeout
	}
	return &Controller{
		page:        opts.Page,
		answers:     opts.Answers,
		confirm:     opts.Confirm,
		resolver:    opts.Resolver,
		widgets:     widgets,
		screenshots: opts.Screenshots,
		logger:      logger,
		idleTimeout: idle,
		doneTimeout: done,
	}, nil
}

// run is the mutable state of one traversal.
type run struct {
	*Controller
	logger *slog.Logger
	result Result
}

func (r *run) enter(state State) {
	r.result.State = state
	r.logger.Debug("traversal state", "state", string(state), "page", r.result.Pages)
}

// Run opens url and walks the form. The page is closed on every exit except
// when the close confirmation is refused, which leaves it open for manual
// inspection.
func (c *Controller) Run(ctx context.Context, url string) (result Result, err error) {
	r := &run{Controller: c, result: Result{RunID: uuid.NewString()}}
	r.logger = c.logger.With("run_id", r.result.RunID)

	defer func() {
		if err != nil {
			r.enter(StateFailed)
		}
		if r.result.State == StateOpen {
			r.logger.Info("leaving browser open per user request")
		} else if closeErr := c.page.Close(context.WithoutCancel(ctx)); closeErr != nil {
			r.logger.Warn("close browser failed", "err", closeErr)
		}
		result = r.result
	}()

	r.logger.Info("navigating", "url", url)
	if err := c.page.Navigate(ctx, url); err != nil {
		return r.result, fmt.Errorf("navigate to form: %w", err)
	}
	r.waitIdle(ctx)

	for {
		advanced, err := r.handlePage(ctx)
		if err != nil {
			return r.result, err
		}
		if !advanced {
			break
		}
	}
	if r.result.State == StateCancelled {
		return r.result, nil
	}

	r.awaitCompletion(ctx)
	return r.result, r.decideClose(ctx)
}

// handlePage fills the current form page and reports whether the form
// advanced to a further page.
func (r *run) handlePage(ctx context.Context) (bool, error) {
	r.result.Pages++
	logger := r.logger.With("page", r.result.Pages)

	r.enter(StateCollectQuestions)
	if _, err := autofill.ToggleEmailOptions(ctx, r.page); err != nil {
		return false, fmt.Errorf("toggle email options: %w", err)
	}
	questions, err := formpage.CollectQuestions(ctx, r.page, logger)
	if err != nil {
		return false, fmt.Errorf("collect questions: %w", err)
	}
	logger.Info("detected questions", "count", len(questions))

	r.enter(StateClassify)
	pending, err := r.classify(ctx, logger, questions)
	if err != nil {
		return false, err
	}

	if len(pending) > 0 {
		r.enter(StateResolveAnswers)
		payloads := make([]question.Payload, len(pending))
		for i, q := range pending {
			payloads[i] = q.Payload
		}
		logger.Info("requesting answers", "count", len(payloads))
		answers, err := r.answers.AnswerBatch(ctx, payloads)
		if err != nil {
			return false, fmt.Errorf("resolve answers: %w", err)
		}
		if len(answers) != len(pending) {
			return false, fmt.Errorf("resolve answers: got %d answers for %d questions", len(answers), len(pending))
		}

		r.enter(StateApply)
		for i, q := range pending {
			logger.Info("answer", "question", question.Truncate(q.Payload.Text, 80), "answer", question.Truncate(answers[i].Text, 80))
			if err := r.widgets.Apply(ctx, q, answers[i]); err != nil {
				return false, fmt.Errorf("apply answer: %w", err)
			}
		}
	}

	r.enter(StateDecideAdvance)
	details := confirm.PageDetails{PageIndex: r.result.Pages - 1, QuestionCount: len(questions)}

	next := formpage.NextButton(r.page)
	if n, err := next.Count(ctx); err != nil {
		return false, err
	} else if n > 0 {
		proceed, err := r.confirm.ConfirmNext(ctx, details)
		if err != nil {
			return false, err
		}
		if !proceed {
			logger.Info("next page navigation cancelled by user")
			r.enter(StateCancelled)
			return false, nil
		}
		logger.Info("advancing to next page")
		if err := next.Nth(0).Click(ctx, dom.ClickOptions{}); err != nil {
			return false, fmt.Errorf("click next: %w", err)
		}
		r.waitIdle(ctx)
		return true, nil
	}

	submit := formpage.SubmitButton(r.page)
	if n, err := submit.Count(ctx); err != nil {
		return false, err
	} else if n > 0 {
		proceed, err := r.confirm.ConfirmSubmit(ctx, details)
		if err != nil {
			return false, err
		}
		if !proceed {
			logger.Info("submission cancelled by user")
			r.enter(StateCancelled)
			return false, nil
		}
		logger.Info("submitting form")
		if err := submit.Nth(0).Click(ctx, dom.ClickOptions{}); err != nil {
			return false, fmt.Errorf("click submit: %w", err)
		}
		r.waitIdle(ctx)
		logger.Info("form submitted")
	}
	return false, nil
}

func (r *run) classify(ctx context.Context, logger *slog.Logger, questions []formpage.Question) ([]formpage.Question, error) {
	pending := make([]formpage.Question, 0, len(questions))
	for _, q := range questions {
		if r.resolver != nil {
			handled, err := r.resolver.Resolve(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("autofill: %w", err)
			}
			if handled {
				continue
			}
		}
		if q.Payload.Kind == question.KindUnknown {
			logger.Info("skipping question with unknown type", "question", question.Truncate(q.Payload.Text, 80))
			continue
		}
		pending = append(pending, q)
	}
	return pending, nil
}

// awaitCompletion is best effort throughout; a form without a confirmation
// banner or score is not a failure.
func (r *run) awaitCompletion(ctx context.Context) {
	r.enter(StateAwaitCompletion)
	if err := formpage.CompletionBanner(r.page).WaitVisible(ctx, r.doneTimeout); err != nil {
		r.logger.Debug("completion banner not observed", "err", err)
	}
	r.waitIdle(ctx)

	for _, control := range formpage.ViewScoreControls(r.page) {
		n, err := control.Count(ctx)
		if err != nil || n == 0 {
			continue
		}
		r.logger.Info("detected view score control, clicking it")
		if err := control.Nth(0).Click(ctx, dom.ClickOptions{}); err != nil {
			r.logger.Warn("click view score failed", "err", err)
			return
		}
		r.waitIdle(ctx)
		path := r.screenshots.NextPath()
		if err := r.page.Screenshot(ctx, path); err != nil {
			r.logger.Warn("score screenshot failed", "path", path, "err", err)
			return
		}
		r.result.Screenshot = path
		r.logger.Info("saved score screenshot", "path", path)
		return
	}
}

func (r *run) decideClose(ctx context.Context) error {
	r.enter(StateDecideClose)
	closeBrowser, err := r.confirm.ConfirmClose(ctx)
	if err != nil {
		return err
	}
	if !closeBrowser {
		r.enter(StateOpen)
		return nil
	}
	r.logger.Info("closing browser")
	r.enter(StateClosed)
	return nil
}

func (r *run) waitIdle(ctx context.Context) {
	if err := r.page.WaitNetworkIdle(ctx, r.idleTimeout); err != nil {
		r.logger.Debug("network idle not observed", "err", err)
	}
}
