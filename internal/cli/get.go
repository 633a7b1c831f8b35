package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fiberplant/internal/model"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <class> <id>",
		Short: "Print a record",
		Long: `Get prints the record of the given class and ID.

Example:
  fiberplant get FiberCable 0192f0c4-...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			rec, err := w.repo.Get(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			view, err := newRecordView(ctx, model.NewFieldCache(w.repo, w.names()), rec)
			if err != nil {
				return err
			}
			return printRecord(cmd.OutOrStdout(), a.flags.jsonMode, view)
		},
	}
}
