package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/picogrid/rov-simulations/pkg/logger"
	"github.com/picogrid/rov-simulations/pkg/simulation"
	"github.com/picogrid/rov-simulations/pkg/utils"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run a simulation and steer it from an operator console",
	Long: `Run a simulation in the background and issue operator commands.

On a terminal the console prompts for each command. Otherwise it reads one
command per line from stdin:

  go_to <node> <x> <z> [depth] [ai=true|false]
  stop <node>
  status
  quit`,
	RunE: runConsole,
}

func init() {
	addSimulationFlags(consoleCmd)
}

const (
	opGoTo   = "go_to"
	opStop   = "stop"
	opStatus = "status"
	opQuit   = "quit"
)

// consoleCommand is one parsed operator instruction
type consoleCommand struct {
	Op    string
	Node  int
	X, Z  float64
	Depth *float64
	AI    *bool
}

func runConsole(cmd *cobra.Command, _ []string) error {
	sim, err := prepareSimulation(cmd)
	if err != nil {
		return err
	}
	commandable, ok := sim.(simulation.Commandable)
	if !ok {
		return fmt.Errorf("%s does not accept operator commands", sim.Name())
	}

	ctx, cancel := signalContext(sim)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	logger.LogSection(fmt.Sprintf("%s console", sim.Name()))
	logger.LogList("Commands:", []string{
		"go_to <node> <x> <z> [depth] [ai=true|false]",
		"stop <node>",
		"status",
		"quit",
	})

	var consoleErr error
	if utils.Interactive() {
		consoleErr = promptLoop(ctx, commandable, cmd.OutOrStdout())
	} else {
		consoleErr = scriptLoop(ctx, commandable, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	_ = sim.Stop()
	runErr := <-done

	if consoleErr != nil {
		return consoleErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("simulation failed: %w", runErr)
	}
	return nil
}

// scriptLoop executes line commands until quit, EOF or cancellation.
// Bad lines are reported and skipped.
func scriptLoop(ctx context.Context, sim simulation.Commandable, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		c, err := parseConsoleLine(line)
		if err != nil {
			_, _ = fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if c.Op == opQuit {
			return nil
		}
		if err := applyCommand(sim, c, out); err != nil {
			_, _ = fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// promptLoop asks for commands with survey until quit or Ctrl-C
func promptLoop(ctx context.Context, sim simulation.Commandable, out io.Writer) error {
	for ctx.Err() == nil {
		c, err := promptCommand(sim)
		if errors.Is(err, terminal.InterruptErr) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.Op == opQuit {
			return nil
		}
		if err := applyCommand(sim, c, out); err != nil {
			logger.Warnf("%v", err)
		}
	}
	return nil
}

func promptCommand(sim simulation.Commandable) (consoleCommand, error) {
	var op string
	if err := survey.AskOne(&survey.Select{
		Message: "Command:",
		Options: []string{opGoTo, opStop, opStatus, opQuit},
	}, &op); err != nil {
		return consoleCommand{}, err
	}

	c := consoleCommand{Op: op}
	if op == opStatus || op == opQuit {
		return c, nil
	}

	statuses := sim.Status()
	options := make([]string, len(statuses))
	for i, st := range statuses {
		options[i] = fmt.Sprintf("%d %s (%s)", st.NodeID, st.Role, st.State)
	}
	var picked int
	if err := survey.AskOne(&survey.Select{Message: "Vehicle:", Options: options}, &picked); err != nil {
		return c, err
	}
	c.Node = statuses[picked].NodeID
	if op == opStop {
		return c, nil
	}

	var x, z, depth string
	if err := survey.AskOne(&survey.Input{Message: "Target X:"}, &x, survey.WithValidator(floatValidator(true))); err != nil {
		return c, err
	}
	if err := survey.AskOne(&survey.Input{Message: "Target Z:"}, &z, survey.WithValidator(floatValidator(true))); err != nil {
		return c, err
	}
	if err := survey.AskOne(&survey.Input{Message: "Depth (blank keeps the default):"}, &depth, survey.WithValidator(floatValidator(false))); err != nil {
		return c, err
	}

	ai := true
	if err := survey.AskOne(&survey.Confirm{Message: "Hazard avoidance on?", Default: true}, &ai); err != nil {
		return c, err
	}

	c.X, _ = strconv.ParseFloat(x, 64)
	c.Z, _ = strconv.ParseFloat(z, 64)
	if depth != "" {
		d, _ := strconv.ParseFloat(depth, 64)
		c.Depth = &d
	}
	c.AI = &ai
	return c, nil
}

func floatValidator(required bool) survey.Validator {
	return func(val interface{}) error {
		s, _ := val.(string)
		if s == "" && !required {
			return nil
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("enter a number")
		}
		return nil
	}
}

// parseConsoleLine parses one line-mode command
func parseConsoleLine(line string) (consoleCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return consoleCommand{}, fmt.Errorf("empty command")
	}

	c := consoleCommand{Op: strings.ToLower(fields[0])}
	args := fields[1:]

	switch c.Op {
	case opStatus, opQuit:
		if len(args) != 0 {
			return c, fmt.Errorf("%s takes no arguments", c.Op)
		}
		return c, nil

	case opStop:
		if len(args) != 1 {
			return c, fmt.Errorf("usage: stop <node>")
		}
		node, err := strconv.Atoi(args[0])
		if err != nil {
			return c, fmt.Errorf("invalid node %q", args[0])
		}
		c.Node = node
		return c, nil

	case opGoTo:
		if len(args) < 3 || len(args) > 5 {
			return c, fmt.Errorf("usage: go_to <node> <x> <z> [depth] [ai=true|false]")
		}
		node, err := strconv.Atoi(args[0])
		if err != nil {
			return c, fmt.Errorf("invalid node %q", args[0])
		}
		c.Node = node
		if c.X, err = strconv.ParseFloat(args[1], 64); err != nil {
			return c, fmt.Errorf("invalid x %q", args[1])
		}
		if c.Z, err = strconv.ParseFloat(args[2], 64); err != nil {
			return c, fmt.Errorf("invalid z %q", args[2])
		}

		for _, arg := range args[3:] {
			if v, ok := strings.CutPrefix(arg, "ai="); ok {
				ai, err := strconv.ParseBool(v)
				if err != nil {
					return c, fmt.Errorf("invalid ai flag %q", v)
				}
				c.AI = &ai
				continue
			}
			if c.Depth != nil {
				return c, fmt.Errorf("depth given twice")
			}
			d, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return c, fmt.Errorf("invalid depth %q", arg)
			}
			c.Depth = &d
		}
		return c, nil
	}

	return c, fmt.Errorf("unknown command %q", fields[0])
}

// applyCommand runs one command against the simulation
func applyCommand(sim simulation.Commandable, c consoleCommand, out io.Writer) error {
	switch c.Op {
	case opGoTo:
		if err := sim.GoTo(c.Node, c.X, c.Z, c.Depth, c.AI); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "ROV %d dispatched to (%.1f, %.1f)\n", c.Node, c.X, c.Z)
	case opStop:
		if err := sim.Halt(c.Node); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "ROV %d stopped\n", c.Node)
	case opStatus:
		writeStatus(out, sim.Status())
	default:
		return fmt.Errorf("unknown command %q", c.Op)
	}
	return nil
}

func writeStatus(out io.Writer, statuses []simulation.VehicleStatus) {
	table := logger.NewTable("ROV", "Role", "State", "Hazard", "X", "Y", "Z", "Battery")
	for _, st := range statuses {
		table.AddRow(
			strconv.Itoa(st.NodeID),
			st.Role,
			st.State,
			st.Hazard,
			fmt.Sprintf("%.1f", st.X),
			fmt.Sprintf("%.1f", st.Y),
			fmt.Sprintf("%.1f", st.Z),
			fmt.Sprintf("%.1f%%", st.Battery),
		)
	}
	table.Render(out)
}
