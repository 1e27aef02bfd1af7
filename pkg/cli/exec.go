package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TechXTT/dal"
)

func newExecCmd(a *app) *cobra.Command {
	var (
		userID   string
		userName string
	)

	cmd := &cobra.Command{
		Use:   "exec <sql> [values...]",
		Short: "Run a statement and report the affected rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			st := dal.Stmt(args[0], values(args[1:])...)

			switch leadingKeyword(args[0]) {
			case "INSERT":
				res, err := s.Insert(ctx, st)
				if err != nil {
					return err
				}
				if res.ID != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "inserted %d (id %v)\n", res.RowsInserted, res.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "inserted %d\n", res.RowsInserted)
				}
			case "UPDATE":
				res, err := s.Update(ctx, st)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d\n", res.RowsUpdated)
			case "DELETE":
				opts := dal.DeleteOptions{UserName: userName}
				if userID != "" {
					opts.UserID = userID
				}
				res, err := s.Delete(ctx, st, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", res.RowsDeleted)
			default:
				if err := s.Exec(ctx, st); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "recorded in deleted_by_id on soft delete")
	cmd.Flags().StringVar(&userName, "user-name", "", "recorded in deleted_by_name on soft delete")
	return cmd
}

func leadingKeyword(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
