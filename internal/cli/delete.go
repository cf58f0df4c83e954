package cli

import (
	"fmt"

	"github.com/ayusman/facultyid/internal/store"
	"github.com/spf13/cobra"
)

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <faculty-id>",
		Short: "Remove an identity, its embeddings and its crops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(e.cfg.DataRoot, e.log)
			if err != nil {
				return err
			}
			if err := st.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
