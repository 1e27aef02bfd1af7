package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechXTT/dal/pkg/script"
)

func newScriptCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "script",
		Short: "Run NNNN_name.sql files from a directory in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := script.NewRunner(s, dir, nil)
			if err != nil {
				return err
			}
			if err := r.Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d scripts\n", len(r.Scripts()))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "scripts", "Scripts directory")
	return cmd
}
