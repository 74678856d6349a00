package genericlinux

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// pwmSetting is the signal a pin should carry. software marks pins without a hardware PWM
// channel, which are toggled by softwarePWMLoop.
type pwmSetting struct {
	duty      gpio.Duty
	frequency physic.Frequency
	software  bool
}

func (s pwmSetting) fraction() float64 {
	return float64(s.duty) / float64(gpio.DutyMax)
}

type periphGpioPin struct {
	b    *Board
	pin  gpio.PinIO
	name string
}

func (b *Board) getGPIOLine(pinName string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, errors.Errorf("no global pin found for %q", pinName)
	}
	return pin, nil
}

func (gp periphGpioPin) Number() int {
	return gp.pin.Number()
}

// Set stops any PWM on the pin before driving the level, so a software loop cannot overwrite it.
func (gp periphGpioPin) Set(ctx context.Context, high bool) error {
	gp.b.mu.Lock()
	defer gp.b.mu.Unlock()
	delete(gp.b.pwms, gp.name)
	return gp.write(high)
}

func (gp periphGpioPin) write(high bool) error {
	if high {
		return gp.pin.Out(gpio.High)
	}
	return gp.pin.Out(gpio.Low)
}

func (gp periphGpioPin) PWM(ctx context.Context) (float64, error) {
	gp.b.mu.RLock()
	defer gp.b.mu.RUnlock()
	setting, ok := gp.b.pwms[gp.name]
	if !ok {
		return 0, errors.Errorf("pin %s is not running pwm", gp.name)
	}
	return setting.fraction(), nil
}

func (gp periphGpioPin) SetPWM(ctx context.Context, duty float64) error {
	if duty < 0 || duty > 1 {
		return errors.Errorf("duty cycle %v for pin %s is outside [0, 1]", duty, gp.name)
	}
	gp.b.mu.Lock()
	defer gp.b.mu.Unlock()
	setting := gp.b.pwmSettingLocked(gp.name)
	setting.duty = gpio.Duty(duty * float64(gpio.DutyMax))
	return gp.applyLocked(setting)
}

func (gp periphGpioPin) SetPWMFreq(ctx context.Context, freqHz uint) error {
	gp.b.mu.Lock()
	defer gp.b.mu.Unlock()
	setting := gp.b.pwmSettingLocked(gp.name)
	if freqHz == 0 {
		setting.frequency = gp.b.defaultPWMFreq
	} else {
		setting.frequency = physic.Frequency(freqHz) * physic.Hertz
	}
	return gp.applyLocked(setting)
}

// expects to already have lock acquired.
func (b *Board) pwmSettingLocked(name string) pwmSetting {
	setting, ok := b.pwms[name]
	if !ok || setting.frequency == 0 {
		setting.frequency = b.defaultPWMFreq
	}
	return setting
}

// applyLocked tries the pin's hardware PWM first and falls back to toggling it from a worker.
// Once a pin has fallen back it stays in software until the next Set.
func (gp periphGpioPin) applyLocked(setting pwmSetting) error {
	if !setting.software {
		err := gp.pin.PWM(setting.duty, setting.frequency)
		if err == nil {
			gp.b.pwms[gp.name] = setting
			return nil
		}
		gp.b.logger.Debugw("hardware pwm unavailable, using software pwm", "pin", gp.name, "error", err)
		setting.software = true
	}
	gp.b.pwms[gp.name] = setting
	if !gp.b.softwarePWMRunning[gp.name] {
		gp.b.softwarePWMRunning[gp.name] = true
		gp.b.workers.AddWorkers(func(ctx context.Context) { gp.b.softwarePWMLoop(ctx, gp) })
	}
	return nil
}

// softwarePWMLoop toggles gp until its setting is removed by Set. Each period rereads the setting
// so duty and frequency changes take effect within one period.
func (b *Board) softwarePWMLoop(ctx context.Context, gp periphGpioPin) {
	defer func() {
		b.mu.Lock()
		delete(b.softwarePWMRunning, gp.name)
		b.mu.Unlock()
	}()
	for {
		b.mu.RLock()
		setting, ok := b.pwms[gp.name]
		b.mu.RUnlock()
		if !ok {
			return
		}

		period := setting.frequency.Period()
		on := time.Duration(setting.fraction() * float64(period))
		if on <= 0 || period <= 0 {
			b.logWriteErr(gp, gp.write(false))
			if !goutils.SelectContextOrWait(ctx, 10*time.Millisecond) {
				return
			}
			continue
		}

		b.logWriteErr(gp, gp.write(true))
		if !goutils.SelectContextOrWait(ctx, on) {
			return
		}
		b.logWriteErr(gp, gp.write(false))
		if !goutils.SelectContextOrWait(ctx, period-on) {
			return
		}
	}
}

func (b *Board) logWriteErr(gp periphGpioPin, err error) {
	if err != nil {
		b.logger.Errorw("cannot write software pwm pin", "pin", gp.name, "error", err)
	}
}
