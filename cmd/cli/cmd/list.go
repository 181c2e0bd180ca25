package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/picogrid/rov-simulations/pkg/simulation"
	"github.com/picogrid/rov-simulations/pkg/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available simulations",
	Long:  `List all available simulations with their descriptions and, with --params, their parameters`,
	RunE:  listSimulations,
}

func init() {
	listCmd.Flags().Bool("params", false, "also list each simulation's parameters")
}

func listSimulations(cmd *cobra.Command, _ []string) error {
	simInfos, err := utils.DiscoverSimulations()
	if err != nil {
		return fmt.Errorf("failed to discover simulations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(simInfos) == 0 {
		_, _ = fmt.Fprintln(out, "No simulations found")
		return nil
	}

	showParams, _ := cmd.Flags().GetBool("params")
	return writeSimulationList(out, simInfos, showParams)
}

func writeSimulationList(out io.Writer, simInfos []utils.SimulationInfo, showParams bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tVERSION\tCATEGORY\tREGISTERED\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "----\t-------\t--------\t----------\t-----------")

	registered := make(map[string]bool)
	for _, name := range simulation.DefaultRegistry.List() {
		registered[name] = true
	}

	for _, info := range simInfos {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			info.Config.Name,
			info.Config.Version,
			info.Config.Category,
			yesNo(registered[info.Config.Name]),
			info.Config.Description,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !showParams {
		return nil
	}

	for _, info := range simInfos {
		_, _ = fmt.Fprintf(out, "\n%s parameters:\n", info.Config.Name)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "  NAME\tTYPE\tDEFAULT\tRANGE\tDESCRIPTION")
		for _, p := range info.Config.Parameters {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%v\t%s\t%s\n", p.Name, p.Type, p.Default, paramRange(p), p.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func paramRange(p simulation.Parameter) string {
	switch {
	case len(p.Options) > 0:
		return strings.Join(p.Options, "|")
	case p.Min != nil && p.Max != nil:
		return fmt.Sprintf("%v..%v", p.Min, p.Max)
	case p.Min != nil:
		return fmt.Sprintf(">= %v", p.Min)
	case p.Max != nil:
		return fmt.Sprintf("<= %v", p.Max)
	}
	return "-"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
