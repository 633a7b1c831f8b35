package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fiberplant/internal/integrity"
	"github.com/mesh-intelligence/fiberplant/internal/session"
)

// scanReport is the JSON form of a scan summary.
type scanReport struct {
	Scanned     int           `json:"scanned"`
	BadIdentity bool          `json:"bad_identity"`
	BadBuffers  bool          `json:"bad_buffers"`
	BadFibers   bool          `json:"bad_fibers"`
	Converted   bool          `json:"converted"`
	Trail       []trailRecord `json:"trail"`
}

type trailRecord struct {
	Level   string `json:"level"`
	Outcome string `json:"outcome"`
	CableID string `json:"cable_id"`
	IPID    string `json:"ipid,omitempty"`
	Message string `json:"message"`
}

func newScanCmd(a *app) *cobra.Command {
	var dryRun, showMetrics bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Check every cable's identity and counts, repairing old fiber counts",
		Long: `Scan visits every cable once and classifies it. Cables whose fiber count
holds the total strand count are converted to a per-tube count. The scan is
one edit; with --dry-run the conversions are reported but not saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			var sum integrity.Summary
			err = w.edit(ctx, func(s *session.Session) error {
				var err error
				if sum, err = s.RunIntegrity(ctx); err != nil {
					return err
				}
				if dryRun {
					return errDryRun
				}
				return nil
			})
			if err != nil && !errors.Is(err, errDryRun) {
				return err
			}

			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				if err := printJSON(out, newScanReport(sum)); err != nil {
					return err
				}
			} else {
				for _, e := range sum.Trail {
					fmt.Fprintf(out, "%-5s %-12s %s\n", e.Level, e.Outcome, e.Message)
				}
				fmt.Fprintf(out, "scanned %d cables: bad identity=%t bad buffers=%t bad fibers=%t converted=%t\n",
					sum.Scanned, sum.HadBadIdentity, sum.HadBadBuffers, sum.HadBadFibers, sum.DidConvert)
				if dryRun && sum.DidConvert {
					fmt.Fprintln(out, "dry run: conversions discarded")
				}
			}
			if showMetrics {
				return w.metrics.WriteText(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without saving conversions")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print scan metrics in Prometheus text format")
	return cmd
}

// errDryRun makes edit discard the session.
var errDryRun = errors.New("dry run")

func newScanReport(sum integrity.Summary) scanReport {
	r := scanReport{
		Scanned:     sum.Scanned,
		BadIdentity: sum.HadBadIdentity,
		BadBuffers:  sum.HadBadBuffers,
		BadFibers:   sum.HadBadFibers,
		Converted:   sum.DidConvert,
		Trail:       make([]trailRecord, 0, len(sum.Trail)),
	}
	for _, e := range sum.Trail {
		r.Trail = append(r.Trail, trailRecord{
			Level:   e.Level.String(),
			Outcome: e.Outcome.String(),
			CableID: e.CableID,
			IPID:    e.IPID,
			Message: e.Message,
		})
	}
	return r
}
