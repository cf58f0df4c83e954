package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/ayusman/facultyid/internal/store"
	"github.com/spf13/cobra"
)

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all enrolled identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(e.cfg.DataRoot, e.log)
			if err != nil {
				return err
			}
			summaries, err := st.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No identities enrolled.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tEMBEDDINGS\tDIMENSION\tUPDATED")
			fmt.Fprintln(w, "--\t----------\t---------\t-------")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.Identity, s.Count, s.Dimension, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
