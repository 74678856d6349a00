package config

import (
	"math"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestParamTable(t *testing.T) {
	names := ParamNames()
	test.That(t, len(names), test.ShouldEqual, 20)
	test.That(t, names[0], test.ShouldEqual, "center_offset")

	params := DefaultParams()
	test.That(t, params.Validate("params"), test.ShouldBeNil)
	for _, name := range names {
		_, ok := LookupParam(name)
		test.That(t, ok, test.ShouldBeTrue)
		_, err := params.Get(name)
		test.That(t, err, test.ShouldBeNil)
	}

	kp, err := params.Get("kp")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kp, test.ShouldEqual, params.KP)
	test.That(t, params.Map()["feedback_alpha"], test.ShouldEqual, 0.25)

	_, err = params.Get("kq")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParamsApply(t *testing.T) {
	params := DefaultParams()

	updated, recalibrate, err := params.Apply(map[string]interface{}{
		"kp":        3,
		"ki":        "0.5",
		"max_speed": 0.25,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, recalibrate, test.ShouldBeFalse)
	test.That(t, updated.KP, test.ShouldEqual, 3)
	test.That(t, updated.KI, test.ShouldEqual, 0.5)
	test.That(t, updated.MaxSpeed, test.ShouldEqual, 0.25)
	// The receiver is untouched.
	test.That(t, params.KP, test.ShouldEqual, DefaultParams().KP)

	_, recalibrate, err = params.Apply(map[string]interface{}{"safe_range": 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, recalibrate, test.ShouldBeTrue)
}

func TestParamsApplyRejectsWithoutMutation(t *testing.T) {
	params := DefaultParams()

	for _, tc := range []struct {
		name    string
		updates map[string]interface{}
		errStr  string
	}{
		{"unknown", map[string]interface{}{"kp": 1, "gain": 2}, `unknown parameter "gain"`},
		{"too big", map[string]interface{}{"kp": 1, "safe_range": 2}, "safe_range must be in [0, 1], got 2"},
		{"too small", map[string]interface{}{"control_interval_ms": 0}, "control_interval_ms"},
		{"not a number", map[string]interface{}{"kd": "fast"}, `parameter "kd"`},
		{"nan", map[string]interface{}{"kd": math.NaN()}, "kd must be in"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			updated, recalibrate, err := params.Apply(tc.updates)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
			test.That(t, recalibrate, test.ShouldBeFalse)
			test.That(t, updated, test.ShouldResemble, params)
		})
	}
}

func TestParamsTable(t *testing.T) {
	params := DefaultParams()
	params.KP = 3.5

	values := params.Map()
	test.That(t, values, test.ShouldHaveLength, len(ParamNames()))
	test.That(t, values["kp"], test.ShouldEqual, 3.5)
	test.That(t, values["stroke"], test.ShouldEqual, params.Stroke)

	rendered := params.String()
	lines := strings.Split(rendered, "\n")
	// Three borders and the header.
	test.That(t, lines, test.ShouldHaveLength, len(ParamNames())+4)
	test.That(t, rendered, test.ShouldContainSubstring, "| kp ")
	test.That(t, rendered, test.ShouldContainSubstring, "3.5")
}
