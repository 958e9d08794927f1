package cwidget

import (
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/pkg/errors"
)

// Input is a labelled entry that parses its text into T and shows the
// parse error under the field.
type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged func(T)

	// Validator parses the entry text. An empty text yields DefaultValue.
	Validator func(string) (T, error)
	Format    func(T) string
}

func newInput[T any](label, placeholder string, defaultValue T, format func(T) string, parse func(string) (T, error), onChanged func(T)) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		DefaultValue: defaultValue,
		OnChanged:    onChanged,
		Format:       format,
	}

	input.Validator = func(s string) (T, error) {
		if strings.TrimSpace(s) == "" {
			return input.DefaultValue, nil
		}
		return parse(s)
	}

	input.labelWidget = widget.NewLabel(input.caption(defaultValue))
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil {
			if input.OnChanged != nil {
				input.OnChanged(res)
			}
			input.labelWidget.SetText(input.caption(res))
		}
	}

	input.ExtendBaseWidget(input)

	return input
}

func (item *Input[T]) caption(v T) string {
	return fmt.Sprintf("%s: %s", item.LabelText, item.Format(v))
}

func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	return newInput(label, placeholder, defaultValue, strconv.Itoa, ParsePositiveInt, onChanged)
}

// NewUnitInput accepts a float in the open interval (0, 1), e.g. a score threshold.
func NewUnitInput(label, placeholder string, defaultValue float32, onChanged func(float32)) *Input[float32] {
	format := func(v float32) string { return strconv.FormatFloat(float64(v), 'f', 2, 32) }
	return newInput(label, placeholder, defaultValue, format, ParseUnitFloat, onChanged)
}

func ParsePositiveInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.New("not an integer")
	}
	if v <= 0 {
		return 0, errors.New("must be greater than zero")
	}
	return v, nil
}

func ParseUnitFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if v <= 0 || v >= 1 {
		return 0, errors.New("must be between 0 and 1")
	}
	return float32(v), nil
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
	item.errorWidget.Refresh()
}

func (item *Input[T]) Disable() { item.entryWidget.Disable() }
func (item *Input[T]) Enable()  { item.entryWidget.Enable() }
