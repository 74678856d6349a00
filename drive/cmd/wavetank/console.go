package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/wavetank/config"
	"go.viam.com/wavetank/drive"
	"go.viam.com/wavetank/logging"
)

// driveAPI is the part of the controller the console drives.
type driveAPI interface {
	SetMode(name string) error
	SetSpeedMode(ctx context.Context, name string) error
	SetParams(updates map[string]interface{}) error
	Params() config.Params
	Status() drive.Status
}

// console reads one operator command per line:
//
//	mode stop|center|wave
//	speed off|pwm|step|step_pwm
//	set <param> <value> [<param> <value> ...]
//	status
//	params
type console struct {
	drive  driveAPI
	in     io.Reader
	out    io.Writer
	logger logging.Logger
}

func newConsole(d driveAPI, in io.Reader, out io.Writer, logger logging.Logger) *console {
	return &console{drive: d, in: in, out: out, logger: logger}
}

// run executes commands until the input ends or ctx is done.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	goutils.PanicCapturingGo(func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			if err := c.exec(ctx, line); err != nil {
				fmt.Fprintln(c.out, "error:", err)
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	c.logger.Debugw("console command", "line", line)
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "mode":
		if len(args) != 1 {
			return errors.New("usage: mode stop|center|wave")
		}
		return c.drive.SetMode(args[0])
	case "speed":
		if len(args) != 1 {
			return errors.New("usage: speed off|pwm|step|step_pwm")
		}
		return c.drive.SetSpeedMode(ctx, args[0])
	case "set":
		if len(args) == 0 || len(args)%2 != 0 {
			return errors.New("usage: set <param> <value> [<param> <value> ...]")
		}
		updates := make(map[string]interface{}, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			updates[args[i]] = args[i+1]
		}
		return c.drive.SetParams(updates)
	case "status":
		return printJSON(c.out, c.drive.Status())
	case "params":
		_, err := fmt.Fprintln(c.out, c.drive.Params())
		return err
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
