package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/spacematrix/internal/classify"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the typology rules in effect",
	Long:  "Prints the typology catalog, the GSI/FSI/L intervals of every rule, the priority order and the boundary tolerances after configuration overrides.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := classify.FromConfig(cfg.Classify)
		if err != nil {
			return err
		}
		return printRules(cmd.OutOrStdout(), c)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func printRules(w io.Writer, c *classify.Classifier) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tGSI\tFSI\tL")
	priority := make([]string, 0, len(c.Rules()))
	for _, r := range c.Rules() {
		fmt.Fprintf(tw, "%s\t%s\t%g–%g\t%g–%g\t%g–%g\n",
			r.Code, c.Name(r.Code), r.GSI.Lo, r.GSI.Hi, r.FSI.Lo, r.FSI.Hi, r.L.Lo, r.L.Hi)
		priority = append(priority, r.Code)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	tol := c.Tolerance()
	fmt.Fprintf(w, "\npriority: %s\n", strings.Join(priority, " > "))
	fmt.Fprintf(w, "tolerances: EPS_G=%g EPS_F=%g EPS_L=%g\n\n", tol.GSI, tol.FSI, tol.L)

	for _, cat := range c.Catalog() {
		fmt.Fprintf(w, "%s  %s: %s\n", cat.Code, cat.Name, cat.Description)
	}
	return nil
}
