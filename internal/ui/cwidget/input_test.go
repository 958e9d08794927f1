package cwidget

import (
	"testing"

	fynetest "fyne.io/fyne/v2/test"
	"go.viam.com/test"
)

func TestParsePositiveInt(t *testing.T) {
	v, err := ParsePositiveInt(" 25 ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, 25)

	for _, in := range []string{"0", "-3", "abc", "2.5"} {
		_, err := ParsePositiveInt(in)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestParseUnitFloat(t *testing.T) {
	v, err := ParseUnitFloat("0.4")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldAlmostEqual, float32(0.4), 1e-6)

	for _, in := range []string{"0", "1", "1.5", "-0.2", "x"} {
		_, err := ParseUnitFloat(in)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestInputDisable(t *testing.T) {
	fynetest.NewTempApp(t)

	var got []int
	input := NewIntInput("Width", "Enter integer", 640, func(i int) { got = append(got, i) })
	test.That(t, input.entryWidget.Disabled(), test.ShouldBeFalse)

	input.Disable()
	test.That(t, input.entryWidget.Disabled(), test.ShouldBeTrue)
	input.Enable()
	test.That(t, input.entryWidget.Disabled(), test.ShouldBeFalse)

	v, err := input.Validator("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, 640)
	_, err = input.Validator("0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, got, test.ShouldBeEmpty)
}
