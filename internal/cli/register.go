package cli

import (
	"fmt"
	"time"

	"github.com/ayusman/facultyid/internal/enrollment"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func newRegisterCmd(e *env) *cobra.Command {
	var showPreview bool

	cmd := &cobra.Command{
		Use:   "register <faculty-id>",
		Short: "Capture face samples from the camera and enroll a faculty member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			application, err := e.newApp(e.cfg, e.log)
			if err != nil {
				return err
			}
			defer application.Close()

			bar := progressbar.NewOptions(e.cfg.ImageQuota,
				progressbar.OptionSetDescription("Capturing "+id),
				progressbar.OptionSetWriter(e.stderr),
				progressbar.OptionShowCount(),
			)
			onCapture := func(count, quota int) {
				bar.Add(1)
			}

			var onFrame enrollment.FrameHook
			if showPreview {
				win := newPreview("facultyid - register " + id)
				defer win.Close()
				onFrame = func(frame *gocv.Mat, faces, count int) bool {
					return win.Show(frame, fmt.Sprintf("%s  %d/%d", id, count, e.cfg.ImageQuota))
				}
			}

			fmt.Fprintf(e.stderr, "Look at the camera. Capturing up to %d samples for %s (Ctrl+C to stop).\n", e.cfg.ImageQuota, id)
			res, err := application.RegisterWith(cmd.Context(), id, onCapture, onFrame)
			bar.Finish()
			fmt.Fprintln(e.stderr)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Captured %d samples for %s (run %s, stopped: %s, %s)\n",
				res.Count, id, res.RunID, res.StopReason, res.Duration.Round(10*time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPreview, "preview", false, "Show the camera feed while capturing")
	return cmd
}
