// Package formtest builds domtest documents shaped like the supported form
// platform.
package formtest

import (
	"github.com/VenkatGGG/formfill/internal/dom/domtest"
	"github.com/VenkatGGG/formfill/internal/formpage"
)

// Item is a question list item with a heading.
func Item(label string, widgets ...*domtest.Node) *domtest.Node {
	item := domtest.El(formpage.SelectorQuestion)
	item.Append(domtest.El(formpage.SelectorHeading).WithText(label))
	item.Append(widgets...)
	return item
}

// RadioGroup renders each choice as label > wrapper > radio plus a text span,
// so the label text sits two levels above the radio.
func RadioGroup(choices ...string) *domtest.Node {
	group := domtest.El("radiogroup")
	for _, choice := range choices {
		radio := domtest.El(formpage.SelectorRadio).WithAttr("aria-checked", "false")
		wrapper := domtest.El().Append(radio)
		row := domtest.El("label").Append(wrapper, domtest.El("span").WithText(choice))
		group.Append(row)
	}
	return group
}

// Radios returns the radio nodes of a RadioGroup in order.
func Radios(group *domtest.Node) []*domtest.Node {
	out := make([]*domtest.Node, 0, len(group.Children))
	for _, row := range group.Children {
		out = append(out, row.Children[0].Children[0])
	}
	return out
}

// Listbox renders a dropdown whose first option is the placeholder.
func Listbox(options ...string) *domtest.Node {
	listbox := domtest.El(formpage.SelectorListbox)
	listbox.Append(domtest.El(formpage.SelectorOption).WithText("Choose"))
	for _, option := range options {
		listbox.Append(domtest.El(formpage.SelectorOption).WithText(option))
	}
	return listbox
}

func TextInput() *domtest.Node {
	return domtest.El(formpage.SelectorTextInput)
}

func Textarea() *domtest.Node {
	return domtest.El(formpage.SelectorTextarea)
}

func Checkbox(label string, checked bool) *domtest.Node {
	state := "false"
	if checked {
		state = "true"
	}
	return domtest.El(formpage.SelectorCheckbox).WithAttr("aria-checked", state).WithText(label)
}

func Image(src string) *domtest.Node {
	return domtest.El(formpage.SelectorImage).WithAttr("src", src)
}

func Button(label string, onClick func()) *domtest.Node {
	button := domtest.El(formpage.SelectorButton).WithText(label)
	button.OnClick = onClick
	return button
}
