package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fiberplant/internal/cascade"
	"github.com/mesh-intelligence/fiberplant/internal/session"
)

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <class> <id>",
		Short: "Delete a record and the splices and connections that depend on it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			var res cascade.Result
			err = w.edit(ctx, func(s *session.Session) error {
				rec, err := w.repo.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				res, err = s.Delete(ctx, rec)
				return err
			})
			if err != nil {
				return err
			}

			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"deleted":     args[1],
					"splices":     res.Splices,
					"connections": res.Connections,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s (%d splices, %d connections broken)\n",
				args[0], args[1], res.Splices, res.Connections)
			return nil
		},
	}
}
