// Package main runs the wave tank drive on a Linux board, or on a fake one for bench testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/wavetank/components/board"
	"go.viam.com/wavetank/components/board/fake"
	"go.viam.com/wavetank/components/board/genericlinux"
	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/drive"
	"go.viam.com/wavetank/logging"
)

const (
	flagConfig  = "config"
	flagFake    = "fake"
	flagLogFile = "log-file"
	flagDebug   = "debug"
	flagMode    = "mode"
)

func main() {
	app := &cli.App{
		Name:            "wavetank",
		Usage:           "drive a wave tank paddle",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated as it grows",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the drive, reading operator commands from stdin",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagFake,
						Usage: "use a fake board instead of the GPIO header",
					},
					&cli.StringFlag{
						Name:  flagMode,
						Value: drive.Stop.String(),
						Usage: "drive mode to enter once running",
					},
				},
				Action: runAction,
			},
			{
				Name:   "validate",
				Usage:  "check a configuration file and print it with defaults filled in",
				Action: validateAction,
			},
			{
				Name:   "params",
				Usage:  "list the tunable parameters and their limits",
				Action: paramsAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from the global flags. The returned closer flushes the
// log file, if any.
func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, func() error, error) {
	logger := logging.NewLogger("wavetank")
	level := logging.INFO
	if cfg != nil && cfg.LogLevel != "" {
		var err error
		if level, err = logging.LevelFromString(cfg.LogLevel); err != nil {
			return nil, nil, err
		}
	}
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	logger.SetLevel(level)
	logging.ReplaceGlobal(logger)

	closer := func() error { return nil }
	if path := c.String(flagLogFile); path != "" {
		appender, file := logging.NewFileAppender(path, 0, 0)
		logger.AddAppender(appender)
		closer = file.Close
	}
	return logger, closer, nil
}

func readConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return nil, errors.New("expected --config")
	}
	return config.Read(path)
}

func runAction(c *cli.Context) (err error) {
	cfg, err := readConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, logger.Sync(), closeLog())
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var b board.Board
	if c.Bool(flagFake) {
		b = fake.NewBoard(nil, logger.Sublogger("board"))
	} else {
		if b, err = genericlinux.NewBoard(cfg, logger.Sublogger("board")); err != nil {
			return err
		}
	}
	defer func() {
		err = multierr.Combine(err, b.Close(context.Background()))
	}()

	ctrl, err := drive.NewController(ctx, cfg, b, logger.Sublogger("drive"), drive.Options{})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, ctrl.Close(context.Background()))
	}()

	if err := ctrl.SetMode(c.String(flagMode)); err != nil {
		return err
	}
	logger.Infow("drive running", "mode", ctrl.Mode(), "speed_mode", cfg.SpeedMode)

	console := newConsole(ctrl, os.Stdin, c.App.Writer, logger)
	return console.run(ctx)
}

func validateAction(c *cli.Context) error {
	cfg, err := readConfig(c)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, cfg)
}

// paramsAction prints the parameters the drive would start with: the defaults, or the config's
// values when --config is given.
func paramsAction(c *cli.Context) error {
	params := config.DefaultParams()
	if c.IsSet(flagConfig) {
		cfg, err := readConfig(c)
		if err != nil {
			return err
		}
		params = cfg.Params
	}
	_, err := fmt.Fprintln(c.App.Writer, params)
	return err
}
