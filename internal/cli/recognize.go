package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ayusman/facultyid/internal/recognition"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func newRecognizeCmd(e *env) *cobra.Command {
	var (
		window      time.Duration
		showPreview bool
	)

	cmd := &cobra.Command{
		Use:   "recognize",
		Short: "Identify faces in front of the camera for a bounded window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := e.newApp(e.cfg, e.log)
			if err != nil {
				return err
			}
			defer application.Close()

			if application.Gallery().Len() == 0 {
				fmt.Fprintln(e.stderr, "No identities enrolled; every face will be reported as Unknown.")
			}

			var win *preview
			if showPreview {
				win = newPreview("facultyid - recognize")
				defer win.Close()
			}

			out := cmd.OutOrStdout()
			seen := map[string]bool{}
			sink := func(frame *gocv.Mat, results []recognition.MatchResult) bool {
				if len(results) > 0 {
					labels := make([]string, len(results))
					for i, r := range results {
						labels[i] = resultLabel(r)
						if r.Matched() {
							seen[r.Label] = true
						}
					}
					fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05.000"), strings.Join(labels, ", "))
				}
				if win != nil {
					return win.ShowResults(frame, results)
				}
				return true
			}

			stats, err := application.Recognize(cmd.Context(), window, sink)
			if err != nil {
				return err
			}

			identified := make([]string, 0, len(seen))
			for id := range seen {
				identified = append(identified, id)
			}
			sort.Strings(identified)
			fmt.Fprintf(out, "Processed %d frames, %d faces, %d matched. Identified: %s\n",
				stats.Frames, stats.Faces, stats.Matched, joinOrNone(identified))
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "window", 0, "How long to recognize for (default from configuration, 10s)")
	cmd.Flags().BoolVar(&showPreview, "preview", false, "Show the camera feed with labelled boxes")
	return cmd
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
