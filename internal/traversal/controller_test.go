package traversal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkatGGG/formfill/internal/autofill"
	"github.com/VenkatGGG/formfill/internal/confirm"
	"github.com/VenkatGGG/formfill/internal/credentials"
	"github.com/VenkatGGG/formfill/internal/dom/domtest"
	"github.com/VenkatGGG/formfill/internal/formpage"
	"github.com/VenkatGGG/formfill/internal/formpage/formtest"
	"github.com/VenkatGGG/formfill/internal/question"
	"github.com/VenkatGGG/formfill/internal/retry"
)

type stubAnswers struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	batches [][]string
}

func (s *stubAnswers) AnswerBatch(_ context.Context, questions []question.Payload) ([]question.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.Text
	}
	s.batches = append(s.batches, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]question.Answer, len(questions))
	for i, q := range questions {
		out[i] = question.NewAnswer(s.answers[q.Text], q.Kind)
	}
	return out, nil
}

type recordingGateway struct {
	next, submit, closeBrowser bool
	calls                      []string
	details                    []confirm.PageDetails
}

func (g *recordingGateway) ConfirmNext(_ context.Context, d confirm.PageDetails) (bool, error) {
	g.calls = append(g.calls, "next")
	g.details = append(g.details, d)
	return g.next, nil
}

func (g *recordingGateway) ConfirmSubmit(_ context.Context, d confirm.PageDetails) (bool, error) {
	g.calls = append(g.calls, "submit")
	g.details = append(g.details, d)
	return g.submit, nil
}

func (g *recordingGateway) ConfirmClose(context.Context) (bool, error) {
	g.calls = append(g.calls, "close")
	return g.closeBrowser, nil
}

type fixedNamer string

func (n fixedNamer) NextPath() string { return string(n) }

func approveAll() *recordingGateway {
	return &recordingGateway{next: true, submit: true, closeBrowser: true}
}

func newController(t *testing.T, page *domtest.Page, answers AnswerSource, gw confirm.Gateway) *Controller {
	t.Helper()
	widgets := formpage.Widgets{Policy: retry.Policy{Attempts: 3, WaitTimeout: time.Millisecond, Delay: time.Millisecond}}
	creds := credentials.Credentials{Email: "s@example.ac.th", Class: "M2", ID: "6701", Name: "Somchai"}
	c, err := New(Options{
		Page:        page,
		Answers:     answers,
		Confirm:     gw,
		Resolver:    autofill.NewResolver(creds, widgets, nil),
		Widgets:     widgets,
		Screenshots: fixedNamer("/tmp/score.png"),
	})
	require.NoError(t, err)
	return c
}

// twoPageForm builds a form whose Next button swaps in a second page, and
// whose Submit button swaps in the completion page with a score control.
type twoPageForm struct {
	page    *domtest.Page
	email   *domtest.Node
	capital *domtest.Node
	city    *domtest.Node
	next    *domtest.Node
	submit  *domtest.Node
	score   *domtest.Node
	consent *domtest.Node
	unknown *domtest.Node
}

func newTwoPageForm() *twoPageForm {
	f := &twoPageForm{page: domtest.NewPage()}
	f.email = formtest.TextInput()
	f.capital = formtest.RadioGroup("Osaka", "Tokyo", "Kyoto")
	f.consent = formtest.Checkbox("Record my email", false)
	f.city = formtest.Listbox("Sapporo", "Nagoya")
	f.unknown = formtest.Item("Upload your homework")
	f.score = domtest.El(formpage.SelectorViewScore).WithText("View score")

	f.submit = formtest.Button("Submit", func() {
		f.page.SetBody(
			domtest.El("div").WithText(formpage.CompletionText),
			f.score,
		)
	})
	f.next = formtest.Button("Next", func() {
		f.page.SetBody(
			formtest.Item("Which city has the TV tower?", f.city),
			f.unknown,
			f.submit,
		)
	})
	f.page.SetBody(
		f.consent,
		formtest.Item("Email", f.email),
		formtest.Item("Capital of Japan?", f.capital),
		f.next,
	)
	return f
}

func TestRunFillsEveryPageAndSubmits(t *testing.T) {
	form := newTwoPageForm()
	answers := &stubAnswers{answers: map[string]string{
		"Capital of Japan?":            "2",
		"Which city has the TV tower?": "1",
	}}
	gw := approveAll()

	result, err := newController(t, form.page, answers, gw).Run(context.Background(), "https://forms.example/f")
	require.NoError(t, err)

	assert.Equal(t, StateClosed, result.State)
	assert.Equal(t, 2, result.Pages)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "/tmp/score.png", result.Screenshot)

	assert.Equal(t, []string{"https://forms.example/f"}, form.page.Navigations)
	assert.Equal(t, [][]string{{"Capital of Japan?"}, {"Which city has the TV tower?"}}, answers.batches)

	assert.Equal(t, "s@example.ac.th", form.email.Value)
	assert.Equal(t, 1, form.consent.Clicks)
	assert.Equal(t, []int{0, 1, 0}, clicks(formtest.Radios(form.capital)...))
	// Dropdown options start with the placeholder, so index 1 is the first real option.
	assert.Equal(t, []int{0, 1, 0}, clicks(form.city.Children...))

	assert.Equal(t, 1, form.next.Clicks)
	assert.Equal(t, 1, form.submit.Clicks)
	assert.Equal(t, 1, form.score.Clicks)
	assert.Equal(t, []string{"/tmp/score.png"}, form.page.Screenshots)

	assert.Equal(t, []string{"next", "submit", "close"}, gw.calls)
	assert.Equal(t, []confirm.PageDetails{{PageIndex: 0, QuestionCount: 2}, {PageIndex: 1, QuestionCount: 2}}, gw.details)
	assert.True(t, form.page.Closed)
}

func TestRunRefusedNextCancelsAndCloses(t *testing.T) {
	form := newTwoPageForm()
	answers := &stubAnswers{answers: map[string]string{"Capital of Japan?": "1"}}
	gw := &recordingGateway{next: false, submit: true, closeBrowser: true}

	result, err := newController(t, form.page, answers, gw).Run(context.Background(), "https://forms.example/f")
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, result.State)
	assert.Equal(t, 0, form.next.Clicks)
	assert.Equal(t, []string{"next"}, gw.calls)
	assert.True(t, form.page.Closed)
}

func TestRunRefusedSubmitCancels(t *testing.T) {
	form := newTwoPageForm()
	answers := &stubAnswers{answers: map[string]string{}}

	result, err := newController(t, form.page, answers, confirm.AlwaysApproveExceptSubmit{}).Run(context.Background(), "https://forms.example/f")
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, result.State)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 1, form.next.Clicks)
	assert.Equal(t, 0, form.submit.Clicks)
	assert.Empty(t, form.page.Screenshots)
	assert.True(t, form.page.Closed)
}

func TestRunLeavesBrowserOpenWhenCloseRefused(t *testing.T) {
	page := domtest.NewPage(formtest.Item("Full name", formtest.TextInput()))
	answers := &stubAnswers{}
	gw := &recordingGateway{closeBrowser: false}

	result, err := newController(t, page, answers, gw).Run(context.Background(), "https://forms.example/f")
	require.NoError(t, err)

	assert.Equal(t, StateOpen, result.State)
	assert.False(t, page.Closed)
	assert.Empty(t, answers.batches, "autofilled questions never reach the answer source")
	assert.Equal(t, []string{"close"}, gw.calls)
}

func TestRunBatchFailureAppliesNothing(t *testing.T) {
	form := newTwoPageForm()
	answers := &stubAnswers{err: errors.New("answer service returned 502")}

	result, err := newController(t, form.page, answers, approveAll()).Run(context.Background(), "https://forms.example/f")
	require.Error(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, []int{0, 0, 0}, clicks(formtest.Radios(form.capital)...))
	assert.Equal(t, 0, form.next.Clicks)
	assert.True(t, form.page.Closed)
}

func TestRunSkipsUnknownQuestionsAndToleratesMissingCompletion(t *testing.T) {
	page := domtest.NewPage(
		formtest.Item("Upload a file"),
		formtest.Item("Favourite colour?", formtest.TextInput()),
	)
	page.ScreenshotErr = errors.New("unused")
	answers := &stubAnswers{answers: map[string]string{"Favourite colour?": "Blue"}}

	result, err := newController(t, page, answers, approveAll()).Run(context.Background(), "https://forms.example/f")
	require.NoError(t, err)

	assert.Equal(t, StateClosed, result.State)
	assert.Equal(t, [][]string{{"Favourite colour?"}}, answers.batches)
	assert.Empty(t, result.Screenshot)
	assert.True(t, page.Closed)
}

func TestRunNavigationFailureClosesPage(t *testing.T) {
	page := domtest.NewPage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newController(t, page, &stubAnswers{}, approveAll()).Run(ctx, "https://forms.example/f")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, result.State)
	assert.True(t, page.Closed)
}

func TestNewValidatesCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func clicks(nodes ...*domtest.Node) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clicks
	}
	return out
}
