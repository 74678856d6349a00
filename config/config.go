// Package config defines the structures to configure the wave tank drive and its hardware.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Speed mode names accepted in a config file.
const (
	SpeedModeOff     = "off"
	SpeedModePWM     = "pwm"
	SpeedModeStep    = "step"
	SpeedModeStepPWM = "step_pwm"
)

// Defaults for the hardware side of the config. They match a pigpio style driver with a
// 16 bit ADS1115 feedback ADC.
const (
	DefaultPWMRange         = 255
	DefaultPWMFrequencyHz   = 8000
	DefaultFullScaleMilliV  = 4096
	DefaultFullScaleReading = 32767
	DefaultDataRateHz       = 860
	DefaultI2CAddress       = 0x48
	DefaultMinPulseMicros   = 20
	DefaultMaxWaitMicros    = 100000
	DefaultSpanMicros       = 20000
	DefaultMaxPulses        = 1000
	DefaultMinPadMicros     = 200
)

// Config is the top level configuration of the drive.
type Config struct {
	Pins      PinConfig      `json:"pins"`
	Feedback  FeedbackConfig `json:"feedback"`
	PWM       PWMConfig      `json:"pwm"`
	Step      StepConfig     `json:"step"`
	SpeedMode string         `json:"speed_mode,omitempty"`
	LogLevel  string         `json:"log_level,omitempty"`
	Params    Params         `json:"params"`
}

// PinConfig defines the mapping of where the actuator driver is wired.
type PinConfig struct {
	Direction string `json:"dir"`
	Step      string `json:"step,omitempty"`
	Enable    string `json:"enable,omitempty"`
	PWMSpeed  string `json:"pwm_speed,omitempty"`
	PWMTorque string `json:"pwm_torque,omitempty"`
	// DirSign flips the meaning of the direction pin when the driver is wired backwards.
	DirSign int `json:"dir_sign,omitempty"`
}

// FeedbackConfig describes the analog position sensor.
type FeedbackConfig struct {
	I2CBus           string `json:"i2c_bus"`
	I2CAddress       int    `json:"i2c_addr,omitempty"`
	Channel          int    `json:"channel,omitempty"`
	FullScaleMilliV  int    `json:"full_scale_mv,omitempty"`
	FullScaleReading int    `json:"full_scale_reading,omitempty"`
	DataRateHz       int    `json:"data_rate_hz,omitempty"`
}

// PWMConfig describes the duty cycle outputs.
type PWMConfig struct {
	Range       int `json:"range,omitempty"`
	FrequencyHz int `json:"frequency_hz,omitempty"`
}

// StepConfig describes the step pulse train timing.
type StepConfig struct {
	MinPulseMicros int `json:"min_pulse_us,omitempty"`
	MaxWaitMicros  int `json:"max_wait_us,omitempty"`
	SpanMicros     int `json:"span_us,omitempty"`
	MaxPulses      int `json:"max_pulses,omitempty"`
	MinPadMicros   int `json:"min_pad_us,omitempty"`
}

// New returns a config with every default filled in.
func New() *Config {
	cfg := &Config{Params: DefaultParams()}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.SpeedMode == "" {
		cfg.SpeedMode = SpeedModePWM
	}
	if cfg.Pins.DirSign == 0 {
		cfg.Pins.DirSign = 1
	}
	setDefaultInt(&cfg.Feedback.I2CAddress, DefaultI2CAddress)
	setDefaultInt(&cfg.Feedback.FullScaleMilliV, DefaultFullScaleMilliV)
	setDefaultInt(&cfg.Feedback.FullScaleReading, DefaultFullScaleReading)
	setDefaultInt(&cfg.Feedback.DataRateHz, DefaultDataRateHz)
	setDefaultInt(&cfg.PWM.Range, DefaultPWMRange)
	setDefaultInt(&cfg.PWM.FrequencyHz, DefaultPWMFrequencyHz)
	setDefaultInt(&cfg.Step.MinPulseMicros, DefaultMinPulseMicros)
	setDefaultInt(&cfg.Step.MaxWaitMicros, DefaultMaxWaitMicros)
	setDefaultInt(&cfg.Step.SpanMicros, DefaultSpanMicros)
	setDefaultInt(&cfg.Step.MaxPulses, DefaultMaxPulses)
	setDefaultInt(&cfg.Step.MinPadMicros, DefaultMinPadMicros)
}

func setDefaultInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}

// Validate ensures all parts of the config are valid. Missing optional values are filled with
// their defaults.
func (cfg *Config) Validate(path string) error {
	cfg.applyDefaults()

	switch cfg.SpeedMode {
	case SpeedModeOff, SpeedModePWM, SpeedModeStep, SpeedModeStepPWM:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown speed_mode %q", cfg.SpeedMode))
	}
	if err := cfg.Pins.Validate(fmt.Sprintf("%s.%s", path, "pins"), cfg.SpeedMode); err != nil {
		return err
	}
	if err := cfg.Feedback.Validate(fmt.Sprintf("%s.%s", path, "feedback")); err != nil {
		return err
	}
	if cfg.PWM.Range < 2 {
		return utils.NewConfigValidationError(path, errors.New("pwm.range must be at least 2"))
	}
	if err := cfg.Step.Validate(fmt.Sprintf("%s.%s", path, "step")); err != nil {
		return err
	}
	return cfg.Params.Validate(fmt.Sprintf("%s.%s", path, "params"))
}

// Validate ensures all parts of the config are valid.
func (cfg *PinConfig) Validate(path, speedMode string) error {
	if cfg.Direction == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "dir")
	}
	switch speedMode {
	case SpeedModeStep, SpeedModeStepPWM:
		if cfg.Step == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "step")
		}
	case SpeedModePWM:
		if cfg.PWMSpeed == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "pwm_speed")
		}
	}
	if cfg.DirSign != 1 && cfg.DirSign != -1 {
		return utils.NewConfigValidationError(path, errors.Errorf("dir_sign must be 1 or -1, got %d", cfg.DirSign))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (cfg *FeedbackConfig) Validate(path string) error {
	if cfg.Channel < 0 || cfg.Channel > 3 {
		return utils.NewConfigValidationError(path, errors.Errorf("channel must be in [0, 3], got %d", cfg.Channel))
	}
	if cfg.FullScaleMilliV <= 0 || cfg.FullScaleReading <= 0 {
		return utils.NewConfigValidationError(path, errors.New("full scale must be positive"))
	}
	return nil
}

// Validate ensures the pulse timing can always produce at least one whole pulse.
func (cfg *StepConfig) Validate(path string) error {
	switch {
	case cfg.MinPulseMicros < 1:
		return utils.NewConfigValidationError(path, errors.Errorf("min_pulse_us must be at least 1, got %d", cfg.MinPulseMicros))
	case cfg.MinPulseMicros > cfg.MaxWaitMicros:
		return utils.NewConfigValidationError(path, errors.New("min_pulse_us must not exceed max_wait_us"))
	case cfg.SpanMicros < 1:
		return utils.NewConfigValidationError(path, errors.Errorf("span_us must be positive, got %d", cfg.SpanMicros))
	case cfg.MaxPulses < 1:
		return utils.NewConfigValidationError(path, errors.Errorf("max_pulses must be at least 1, got %d", cfg.MaxPulses))
	case cfg.MinPadMicros < 0:
		return utils.NewConfigValidationError(path, errors.Errorf("min_pad_us must not be negative, got %d", cfg.MinPadMicros))
	}
	return nil
}

// FullScaleVolts is the voltage of a full scale reading.
func (cfg *FeedbackConfig) FullScaleVolts() float64 {
	return float64(cfg.FullScaleMilliV) / 1000
}
