package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechXTT/dal"
)

func newQueryCmd(a *app) *cobra.Command {
	var one bool

	cmd := &cobra.Command{
		Use:   "query <sql> [values...]",
		Short: "Run a query and print rows as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st := dal.Stmt(args[0], values(args[1:])...)
			enc := json.NewEncoder(cmd.OutOrStdout())

			if one {
				row, ok, err := s.QueryRow(cmd.Context(), st)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no row")
					return nil
				}
				return enc.Encode(row)
			}

			rows, err := s.QueryRows(cmd.Context(), st)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&one, "one", false, "print only the first row")
	return cmd
}
