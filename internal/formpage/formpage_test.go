package formpage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenkatGGG/formfill/internal/dom/domtest"
	"github.com/VenkatGGG/formfill/internal/formpage"
	"github.com/VenkatGGG/formfill/internal/formpage/formtest"
	"github.com/VenkatGGG/formfill/internal/question"
	"github.com/VenkatGGG/formfill/internal/retry"
)

func fastWidgets() formpage.Widgets {
	return formpage.Widgets{Policy: retry.Policy{Attempts: 3, WaitTimeout: time.Millisecond, Delay: time.Millisecond}}
}

func TestCollectQuestionsDetectsKinds(t *testing.T) {
	page := domtest.NewPage(
		formtest.Item("Favourite fruit *\nRequired", formtest.RadioGroup("Apple", "Banana"), formtest.Image("https://img.example/a.png")),
		formtest.Item("Pick a city", formtest.Listbox("Tokyo", "Osaka")),
		formtest.Item("Your answer", formtest.TextInput()),
		formtest.Item("Long answer", formtest.Textarea()),
		formtest.Item("Upload a file"),
		formtest.Item("   "),
	)

	questions, err := formpage.CollectQuestions(context.Background(), page, nil)
	require.NoError(t, err)
	require.Len(t, questions, 5)

	assert.Equal(t, question.Payload{
		Text:      "Favourite fruit *",
		ImageURLs: []string{"https://img.example/a.png"},
		Choices:   []string{"Apple", "Banana"},
		Kind:      question.KindRadio,
	}, questions[0].Payload)
	assert.Equal(t, question.KindDropdown, questions[1].Payload.Kind)
	assert.Equal(t, []string{"Choose", "Tokyo", "Osaka"}, questions[1].Payload.Choices)
	assert.Equal(t, question.KindShortAnswer, questions[2].Payload.Kind)
	assert.Equal(t, question.KindShortAnswer, questions[3].Payload.Kind)
	assert.Equal(t, question.KindUnknown, questions[4].Payload.Kind)
	assert.Empty(t, questions[4].Payload.ImageURLs)
	assert.NotNil(t, questions[4].Payload.ImageURLs)
}

func TestCollectQuestionsOnEmptyPage(t *testing.T) {
	questions, err := formpage.CollectQuestions(context.Background(), domtest.NewPage(), nil)
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func collectOne(t *testing.T, page *domtest.Page) formpage.Question {
	t.Helper()
	questions, err := formpage.CollectQuestions(context.Background(), page, nil)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	return questions[0]
}

func TestApplyRadioUsesOneBasedLabel(t *testing.T) {
	group := formtest.RadioGroup("a", "b", "c")
	q := collectOne(t, domtest.NewPage(formtest.Item("Pick", group)))

	require.NoError(t, fastWidgets().Apply(context.Background(), q, question.NewAnswer("2", question.KindRadio)))
	radios := formtest.Radios(group)
	assert.Equal(t, 0, radios[0].Clicks)
	assert.Equal(t, 1, radios[1].Clicks)
	assert.Equal(t, "true", radios[1].Attrs["aria-checked"])
}

func TestApplyRadioOutOfRangeLeavesQuestionUnanswered(t *testing.T) {
	group := formtest.RadioGroup("a", "b", "c")
	q := collectOne(t, domtest.NewPage(formtest.Item("Pick", group)))

	for _, raw := range []string{"5", "0"} {
		require.NoError(t, fastWidgets().Apply(context.Background(), q, question.NewAnswer(raw, question.KindRadio)))
	}
	for _, radio := range formtest.Radios(group) {
		assert.Equal(t, 0, radio.Clicks)
	}
}

func TestApplyDropdownUsesRawIndex(t *testing.T) {
	listbox := formtest.Listbox("Tokyo", "Osaka")
	q := collectOne(t, domtest.NewPage(formtest.Item("City", listbox)))

	require.NoError(t, fastWidgets().Apply(context.Background(), q, question.NewAnswer("2", question.KindDropdown)))
	assert.Equal(t, 1, listbox.Clicks)
	assert.Equal(t, 0, listbox.Children[1].Clicks)
	assert.Equal(t, 1, listbox.Children[2].Clicks, "raw index 2 is Osaka behind the placeholder")
}

func TestApplyDropdownRetriesFlakyOption(t *testing.T) {
	listbox := formtest.Listbox("Tokyo", "Osaka")
	listbox.Children[1].ClickErrors = 2
	q := collectOne(t, domtest.NewPage(formtest.Item("City", listbox)))

	require.NoError(t, fastWidgets().Apply(context.Background(), q, question.NewAnswer("1", question.KindDropdown)))
	assert.Equal(t, 1, listbox.Children[1].Clicks)
}

func TestApplyDropdownSurfacesInteractionError(t *testing.T) {
	listbox := formtest.Listbox("Tokyo", "Osaka")
	listbox.Children[1].ClickErrors = 10
	q := collectOne(t, domtest.NewPage(formtest.Item("City", listbox)))

	err := fastWidgets().Apply(context.Background(), q, question.NewAnswer("1", question.KindDropdown))
	var interaction *retry.InteractionError
	require.True(t, errors.As(err, &interaction))
	assert.Equal(t, 3, interaction.Attempts)
	assert.Equal(t, 7, listbox.Children[1].ClickErrors)
}

func TestApplyShortAnswerPrefersTextInput(t *testing.T) {
	input := formtest.TextInput()
	area := formtest.Textarea()
	q := collectOne(t, domtest.NewPage(formtest.Item("Name", input, area)))

	require.NoError(t, fastWidgets().Apply(context.Background(), q, question.NewAnswer(" Mount Fuji ", question.KindShortAnswer)))
	assert.Equal(t, "Mount Fuji", input.Value)
	assert.Empty(t, area.Value)
}

func TestFillTextFallsBackToTextarea(t *testing.T) {
	area := formtest.Textarea()
	q := collectOne(t, domtest.NewPage(formtest.Item("Essay", area)))

	ok, err := fastWidgets().FillText(context.Background(), q.Handle, "text")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "text", area.Value)
}

func TestNavigationControls(t *testing.T) {
	page := domtest.NewPage(
		formtest.Button("Back", nil),
		formtest.Button("ถัดไป", nil),
	)
	ctx := context.Background()

	n, err := formpage.NextButton(page).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = formpage.SubmitButton(page).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	page.SetBody(domtest.El("div").WithText(formpage.CompletionText))
	n, err = formpage.CompletionBanner(page).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
