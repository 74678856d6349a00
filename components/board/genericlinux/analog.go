package genericlinux

import (
	"context"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/config"
)

var adsChannels = []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

// ads1115Analog reads one single ended channel of an ADS1115.
type ads1115Analog struct {
	pin      ads1x15.PinADC
	maxVolts float32
	stepSize float32
}

func newADS1115Analog(bus i2c.Bus, conf config.FeedbackConfig) (*ads1115Analog, error) {
	opts := ads1x15.DefaultOpts
	opts.I2cAddress = uint16(conf.I2CAddress)
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open ADS1115")
	}

	maxVoltage := physic.ElectricPotential(conf.FullScaleMilliV) * physic.MilliVolt
	rate := physic.Frequency(conf.DataRateHz) * physic.Hertz
	pin, err := dev.PinForChannel(adsChannels[conf.Channel], maxVoltage, rate, ads1x15.BestQuality)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open ADS1115 channel %d", conf.Channel)
	}

	return &ads1115Analog{
		pin:      pin,
		maxVolts: float32(conf.FullScaleVolts()),
		stepSize: float32(conf.FullScaleVolts() / float64(conf.FullScaleReading)),
	}, nil
}

// Read does a single conversion.
func (a *ads1115Analog) Read(ctx context.Context) (board.AnalogValue, error) {
	sample, err := a.pin.Read()
	if err != nil {
		return board.AnalogValue{}, err
	}
	return board.AnalogValue{
		Value:    int(sample.Raw),
		Min:      0,
		Max:      a.maxVolts,
		StepSize: a.stepSize,
	}, nil
}

// Close halts the conversion.
func (a *ads1115Analog) Close(ctx context.Context) error {
	return a.pin.Halt()
}
