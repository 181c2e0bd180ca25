package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/picogrid/rov-simulations/pkg/logger"
	"github.com/picogrid/rov-simulations/pkg/simulation"
	"github.com/picogrid/rov-simulations/pkg/utils"

	// Import simulations to register them
	_ "github.com/picogrid/rov-simulations/cmd/rov-swarm/simulation"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long:  `Run a simulation interactively or with specified parameters`,
	RunE:  runSimulation,
}

func init() {
	addSimulationFlags(runCmd)
}

// addSimulationFlags registers the flags shared by run and console
func addSimulationFlags(c *cobra.Command) {
	c.Flags().StringP("simulation", "s", "", "simulation name to run")
	c.Flags().StringP("params", "p", "", "parameters file (YAML)")
	c.Flags().StringToString("set", nil, "parameter override, e.g. --set num_rovs=6 (repeatable)")
	c.Flags().BoolP("yes", "y", false, "accept defaults instead of prompting")
	c.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	c.Flags().String("publish-addr", "", "publish telemetry on this mangos URL, e.g. tcp://127.0.0.1:40899")

	_ = viper.BindPFlag("metrics_addr", c.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("publish_addr", c.Flags().Lookup("publish-addr"))
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	sim, err := prepareSimulation(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(sim)
	defer cancel()

	logger.LogSection(fmt.Sprintf("Starting %s", sim.Name()))
	if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("simulation failed: %w", err)
	}

	logger.Success("Simulation completed successfully")
	return nil
}

// prepareSimulation selects, parameterises and configures a simulation
func prepareSimulation(cmd *cobra.Command) (simulation.Simulation, error) {
	simName, err := selectSimulation(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to select simulation: %w", err)
	}

	sim, err := simulation.DefaultRegistry.Get(simName)
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation: %w", err)
	}

	simInfos, err := utils.DiscoverSimulations()
	if err != nil {
		return nil, fmt.Errorf("failed to discover simulations: %w", err)
	}
	info, err := utils.FindSimulation(simInfos, simName)
	if err != nil {
		return nil, err
	}

	explicit, err := explicitParameters(cmd)
	if err != nil {
		return nil, err
	}

	params, err := collectParameters(cmd, info.Config.Parameters, explicit)
	if err != nil {
		return nil, fmt.Errorf("failed to get parameters: %w", err)
	}

	logParameters(params)

	if err := sim.Configure(params); err != nil {
		return nil, fmt.Errorf("failed to configure simulation: %w", err)
	}
	return sim, nil
}

func logParameters(params map[string]interface{}) {
	if len(params) == 0 {
		return
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	logger.LogSubSection("Parameters")
	for _, name := range names {
		logger.LogKeyValue(name, params[name])
	}
}

// explicitParameters gathers values from the params file, --set and the
// output address flags. Later sources win.
func explicitParameters(cmd *cobra.Command) (map[string]interface{}, error) {
	explicit := make(map[string]interface{})

	if path, _ := cmd.Flags().GetString("params"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameters file: %w", err)
		}
		if err := yaml.Unmarshal(data, &explicit); err != nil {
			return nil, fmt.Errorf("failed to parse parameters file: %w", err)
		}
	}

	sets, _ := cmd.Flags().GetStringToString("set")
	for k, v := range sets {
		explicit[k] = v
	}

	for _, key := range []string{"metrics_addr", "publish_addr"} {
		if v := viper.GetString(key); v != "" {
			explicit[key] = v
		}
	}
	return explicit, nil
}

// collectParameters prompts only when attached to a terminal and no
// parameters were supplied up front
func collectParameters(cmd *cobra.Command, params []simulation.Parameter, explicit map[string]interface{}) (map[string]interface{}, error) {
	yes, _ := cmd.Flags().GetBool("yes")
	if yes || len(explicit) > 0 || !utils.Interactive() {
		return utils.ResolveParameters(params, explicit)
	}
	return utils.PromptForParameters(params)
}

// signalContext cancels on SIGINT/SIGTERM after asking the simulation to stop
func signalContext(sim simulation.Simulation) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			logger.Warn("Received interrupt signal, stopping simulation...")
			if err := sim.Stop(); err != nil {
				logger.Errorf("Failed to stop simulation: %v", err)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func selectSimulation(cmd *cobra.Command) (string, error) {
	simName, _ := cmd.Flags().GetString("simulation")
	if simName != "" {
		return simName, nil
	}

	simInfos, err := utils.DiscoverSimulations()
	if err != nil {
		return "", err
	}
	if len(simInfos) == 0 {
		return "", fmt.Errorf("no simulations found")
	}
	if len(simInfos) == 1 || !utils.Interactive() {
		return simInfos[0].Config.Name, nil
	}

	options := make([]string, len(simInfos))
	descriptions := make(map[string]string)
	for i, info := range simInfos {
		options[i] = info.Config.Name
		descriptions[info.Config.Name] = info.Config.Description
	}

	var selected string
	prompt := &survey.Select{
		Message: "Select simulation:",
		Options: options,
		Description: func(value string, index int) string {
			return descriptions[value]
		},
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return selected, nil
}
