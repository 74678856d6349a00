package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	rutils "go.viam.com/wavetank/utils"
)

// Params are the run time tunable gains and limits of the drive. Every field is reachable by
// name through the parameter table.
type Params struct {
	KP                  float64 `json:"kp"`
	KI                  float64 `json:"ki"`
	KD                  float64 `json:"kd"`
	IntegralLimit       float64 `json:"integral_limit"`
	MaxSpeed            float64 `json:"max_speed"`
	SafeRange           float64 `json:"safe_range"`
	TorqueLimit         float64 `json:"torque_limit"`
	TorqueMin           float64 `json:"torque_min"`
	FeedbackAlpha       float64 `json:"feedback_alpha"`
	CenterSpeedFraction float64 `json:"center_speed_fraction"`
	CenterOffset        float64 `json:"center_offset"`
	WaveHeight          float64 `json:"wave_height"`
	WaveSteepness       float64 `json:"wave_steepness"`
	WaveRampTime        float64 `json:"wave_ramp_time"`
	CenterTime          float64 `json:"center_time"`
	ControlIntervalMS   float64 `json:"control_interval_ms"`
	SampleIntervalMS    float64 `json:"sample_interval_ms"`
	DistancePerStep     float64 `json:"distance_per_step"`
	Stroke              float64 `json:"stroke"`
	DirectionBias       float64 `json:"direction_bias"`
}

// DefaultParams returns the parameters the drive starts with.
func DefaultParams() Params {
	return Params{
		KP:                  2,
		KI:                  0.2,
		KD:                  0.05,
		MaxSpeed:            0.3,
		SafeRange:           0.8,
		TorqueLimit:         0.5,
		TorqueMin:           0.05,
		FeedbackAlpha:       0.25,
		CenterSpeedFraction: 0.25,
		WaveHeight:          0.1,
		WaveSteepness:       50,
		WaveRampTime:        10,
		CenterTime:          5,
		ControlIntervalMS:   10,
		SampleIntervalMS:    8,
		DistancePerStep:     0.0001,
		Stroke:              0.5,
		DirectionBias:       1,
	}
}

// Param is one row of the parameter table.
type Param struct {
	Name     string
	Min, Max float64
	// Recalibrate is set for parameters the calibration constants are derived from.
	Recalibrate bool

	field func(*Params) *float64
}

var paramTable = map[string]Param{}

func init() {
	for _, p := range []Param{
		{Name: "kp", Min: 0, Max: 100, field: func(p *Params) *float64 { return &p.KP }},
		{Name: "ki", Min: 0, Max: 100, field: func(p *Params) *float64 { return &p.KI }},
		{Name: "kd", Min: 0, Max: 100, field: func(p *Params) *float64 { return &p.KD }},
		{Name: "integral_limit", Min: 0, Max: 100, field: func(p *Params) *float64 { return &p.IntegralLimit }},
		{Name: "max_speed", Min: 0, Max: 2, field: func(p *Params) *float64 { return &p.MaxSpeed }},
		{Name: "safe_range", Min: 0, Max: 1, Recalibrate: true, field: func(p *Params) *float64 { return &p.SafeRange }},
		{Name: "torque_limit", Min: 0, Max: 1, field: func(p *Params) *float64 { return &p.TorqueLimit }},
		{Name: "torque_min", Min: 0, Max: 1, field: func(p *Params) *float64 { return &p.TorqueMin }},
		{Name: "feedback_alpha", Min: 0.001, Max: 1, field: func(p *Params) *float64 { return &p.FeedbackAlpha }},
		{Name: "center_speed_fraction", Min: 0, Max: 1, field: func(p *Params) *float64 { return &p.CenterSpeedFraction }},
		{Name: "center_offset", Min: -1, Max: 1, Recalibrate: true, field: func(p *Params) *float64 { return &p.CenterOffset }},
		{Name: "wave_height", Min: 0, Max: 2, field: func(p *Params) *float64 { return &p.WaveHeight }},
		{Name: "wave_steepness", Min: 1, Max: 500, field: func(p *Params) *float64 { return &p.WaveSteepness }},
		{Name: "wave_ramp_time", Min: 0, Max: 600, field: func(p *Params) *float64 { return &p.WaveRampTime }},
		{Name: "center_time", Min: 0, Max: 600, field: func(p *Params) *float64 { return &p.CenterTime }},
		{Name: "control_interval_ms", Min: 1, Max: 1000, field: func(p *Params) *float64 { return &p.ControlIntervalMS }},
		{Name: "sample_interval_ms", Min: 1, Max: 1000, field: func(p *Params) *float64 { return &p.SampleIntervalMS }},
		{Name: "distance_per_step", Min: 1e-7, Max: 0.1, field: func(p *Params) *float64 { return &p.DistancePerStep }},
		{Name: "stroke", Min: 0.001, Max: 10, Recalibrate: true, field: func(p *Params) *float64 { return &p.Stroke }},
		{Name: "direction_bias", Min: -1, Max: 1, field: func(p *Params) *float64 { return &p.DirectionBias }},
	} {
		paramTable[p.Name] = p
	}
}

// ParamNames returns the sorted names of every tunable parameter.
func ParamNames() []string {
	names := lo.Keys(paramTable)
	sort.Strings(names)
	return names
}

// LookupParam returns the table row for name.
func LookupParam(name string) (Param, bool) {
	p, ok := paramTable[name]
	return p, ok
}

// Get returns the value of the named parameter.
func (p *Params) Get(name string) (float64, error) {
	param, ok := paramTable[name]
	if !ok {
		return 0, rutils.NewUnknownNameError("parameter", name)
	}
	return *param.field(p), nil
}

// Map returns every parameter keyed by name.
func (p *Params) Map() map[string]float64 {
	return lo.MapValues(paramTable, func(param Param, _ string) float64 {
		return *param.field(p)
	})
}

// String prints a table of every parameter with its value and bounds.
func (p Params) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "Value", "Min", "Max"})
	for _, name := range ParamNames() {
		param := paramTable[name]
		t.AppendRow(table.Row{
			name,
			fmt.Sprintf("%g", *param.field(&p)),
			fmt.Sprintf("%g", param.Min),
			fmt.Sprintf("%g", param.Max),
		})
	}
	return t.Render()
}

// Apply validates every update against the parameter table and, only when all of them are
// acceptable, returns a copy of p with the updates applied. It also reports whether any of the
// updated parameters feeds the calibration constants.
func (p Params) Apply(updates map[string]interface{}) (Params, bool, error) {
	values := make(map[string]float64, len(updates))
	var errs error
	for name, raw := range updates {
		param, ok := paramTable[name]
		if !ok {
			errs = multierr.Append(errs, rutils.NewUnknownNameError("parameter", name))
			continue
		}
		value, err := cast.ToFloat64E(raw)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "parameter %q", name))
			continue
		}
		if err := param.check(value); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		values[name] = value
	}
	if errs != nil {
		return p, false, errs
	}

	recalibrate := false
	for name, value := range values {
		param := paramTable[name]
		*param.field(&p) = value
		recalibrate = recalibrate || param.Recalibrate
	}
	return p, recalibrate, nil
}

// Validate ensures every parameter is within its bounds.
func (p *Params) Validate(path string) error {
	for _, name := range ParamNames() {
		param := paramTable[name]
		if err := param.check(*param.field(p)); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

func (param Param) check(value float64) error {
	if math.IsNaN(value) || value < param.Min || value > param.Max {
		return rutils.NewOutOfRangeError(param.Name, value, param.Min, param.Max)
	}
	return nil
}
