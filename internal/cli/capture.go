package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jtejido/kioskscanner/internal/service"
)

func captureCmd(opts *rootOptions) *cobra.Command {
	var (
		out string
		req service.CaptureRequest
	)

	c := &cobra.Command{
		Use:   "capture",
		Short: "Capture one fingerprint and write the sample to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := build(opts, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), "Place your finger on the reader...")
			res, err := deps.svc.RequestCapture(cmd.Context(), req)
			if err != nil {
				return err
			}

			if out == "" {
				out = fmt.Sprintf("%s_%s.%s", res.Finger, res.CapturedAt.Format("20060102T150405"), res.Format)
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(res.Sample)
				return err
			}
			if err := os.WriteFile(out, res.Sample, 0o644); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s, quality %s, %d attempt(s), %s\n",
				out, res.Width, res.Height, res.Format, res.Quality, res.Attempts, res.Elapsed)
			return nil
		},
	}

	c.Flags().StringVarP(&out, "out", "o", "", `output file ("-" for stdout; default derived from finger and time)`)
	c.Flags().StringVarP(&req.Finger, "finger", "f", service.DefaultFinger, "finger position, e.g. right_index or left thumb")
	c.Flags().StringVar(&req.Format, "format", "", "sample encoding: png, pgm or raw (default from config)")
	c.Flags().StringVar(&req.Template, "template", "", "template format: ansi378, iso19794 or none (default from config)")
	c.Flags().IntVar(&req.TimeoutSeconds, "timeout", 0, "seconds per attempt (default from config)")
	c.Flags().IntVar(&req.MaxAttempts, "attempts", 0, "maximum attempts (default from config)")
	return c
}
