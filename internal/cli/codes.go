package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jtejido/kioskscanner/internal/scanner"
)

func codesCmd() *cobra.Command {
	var kinds bool

	c := &cobra.Command{
		Use:   "codes",
		Short: "Print how vendor statuses are classified",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if kinds {
				fmt.Fprintln(w, "KIND\tMESSAGE")
				for _, k := range scanner.Kinds() {
					fmt.Fprintf(w, "%s\t%s\n", k, scanner.Describe(k))
				}
				return w.Flush()
			}
			fmt.Fprintln(w, "SITE\tSTATUS\tKIND\tRETRYABLE")
			for _, e := range scanner.Table() {
				kind := string(e.Kind)
				if kind == "" {
					kind = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", e.Site, e.Status, kind, e.Retryable)
			}
			return w.Flush()
		},
	}

	c.Flags().BoolVar(&kinds, "kinds", false, "list error kinds and their messages instead")
	return c
}
