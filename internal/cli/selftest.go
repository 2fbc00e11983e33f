package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func selftestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Load the vendor SDK and list connected readers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := build(opts, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			report, err := deps.svc.SelfTest()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
