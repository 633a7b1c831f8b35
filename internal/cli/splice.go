package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fiberplant/internal/endpoint"
	"github.com/mesh-intelligence/fiberplant/internal/joins"
	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/internal/session"
)

func newSpliceCmd(a *app) *cobra.Command {
	var (
		aStrand, bStrand int
		aEnd, bEnd       string
		closureID        string
	)
	cmd := &cobra.Command{
		Use:   "splice <a-cable-id> <b-cable-id>",
		Short: "Splice a strand of one cable to a strand of another",
		Long: `Splice joins strand --a-strand of cable A to strand --b-strand of cable B.
Without --a-end and --b-end the joining ends are picked from the cable
geometry; when no endpoints coincide the splice keeps the default
orientation and is reported as unresolved.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if (aEnd == "") != (bEnd == "") {
				return usageErrorf("--a-end and --b-end must be given together")
			}
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			var res joins.SpliceResult
			err = w.edit(ctx, func(s *session.Session) error {
				cache := s.Cache()
				req := joins.SpliceRequest{AStrand: aStrand, BStrand: bStrand}
				var err error
				if req.A, err = w.cable(ctx, cache, args[0]); err != nil {
					return err
				}
				if req.B, err = w.cable(ctx, cache, args[1]); err != nil {
					return err
				}
				if closureID != "" {
					if req.Closure, err = w.closure(ctx, cache, closureID); err != nil {
						return err
					}
				}
				if aEnd != "" {
					ea, err := parseEnd(aEnd)
					if err != nil {
						return err
					}
					eb, err := parseEnd(bEnd)
					if err != nil {
						return err
					}
					req.Ends = &model.PairedJoinEnds{
						A: model.JoinEnd{Cable: req.A, End: ea},
						B: model.JoinEnd{Cable: req.B, End: eb},
					}
				}
				res, err = s.Splice(ctx, req)
				return err
			})
			if err != nil {
				return err
			}

			rule := "caller"
			if res.Resolution != nil {
				rule = res.Resolution.Rule.String()
			}
			sp := res.Splice
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id":       sp.ID(),
					"a_end":    sp.AEnd().String(),
					"b_end":    sp.BEnd().String(),
					"rule":     rule,
					"resolved": res.Resolution == nil || res.Resolution.Resolved(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created splice %s (a=%s b=%s, rule %s)\n",
				sp.ID(), sp.AEnd(), sp.BEnd(), rule)
			return nil
		},
	}
	cmd.Flags().IntVar(&aStrand, "a-strand", 1, "strand number on cable A")
	cmd.Flags().IntVar(&bStrand, "b-strand", 1, "strand number on cable B")
	cmd.Flags().StringVar(&aEnd, "a-end", "", "joining end of cable A (from or to)")
	cmd.Flags().StringVar(&bEnd, "b-end", "", "joining end of cable B (from or to)")
	cmd.Flags().StringVar(&closureID, "closure", "", "splice closure ID")
	return cmd
}

func newConnectCmd(a *app) *cobra.Command {
	var (
		end      string
		strand   int
		port     int
		portType string
	)
	cmd := &cobra.Command{
		Use:   "connect <cable-id> <device-id>",
		Short: "Connect a cable strand to a device port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := parseEnd(end)
			if err != nil {
				return err
			}
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			var cn *model.Connection
			err = w.edit(ctx, func(s *session.Session) error {
				cache := s.Cache()
				cable, err := w.cable(ctx, cache, args[0])
				if err != nil {
					return err
				}
				dev, err := w.device(ctx, cache, args[1])
				if err != nil {
					return err
				}
				cn, err = s.Connect(ctx, joins.ConnectionRequest{
					End:      model.JoinEnd{Cable: cable, End: e},
					Strand:   strand,
					Device:   dev,
					Port:     port,
					PortType: portType,
				})
				return err
			})
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id":        cn.ID(),
					"cable_end": cn.CableEnd().String(),
					"strand":    cn.Strand(),
					"port":      cn.Port(),
					"port_type": cn.PortType(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created connection %s (%s end strand %d to %s port %d)\n",
				cn.ID(), cn.CableEnd(), cn.Strand(), cn.PortType(), cn.Port())
			return nil
		},
	}
	cmd.Flags().StringVar(&end, "end", "from", "cable end (from or to)")
	cmd.Flags().IntVar(&strand, "strand", 1, "strand number")
	cmd.Flags().IntVar(&port, "port", 1, "device port number")
	cmd.Flags().StringVar(&portType, "port-type", model.PortInput, "port type (input or output)")
	return cmd
}

func newMoveSpliceCmd(a *app) *cobra.Command {
	var closureID string
	cmd := &cobra.Command{
		Use:   "move-splice <splice-id>",
		Short: "Move a splice into another closure, or out of its closure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			var sp *model.Splice
			err = w.edit(ctx, func(s *session.Session) error {
				cache := s.Cache()
				rec, err := w.find(ctx, args[0], w.names().Classes.Splice)
				if err != nil {
					return err
				}
				if sp, err = cache.WrapSplice(ctx, rec); err != nil {
					return err
				}
				var closure *model.SpliceClosure
				if closureID != "" {
					if closure, err = w.closure(ctx, cache, closureID); err != nil {
						return err
					}
				}
				return s.MoveSplice(ctx, sp, closure)
			})
			if err != nil {
				return err
			}

			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": sp.ID(), "closure": sp.ClosureID()})
			}
			if sp.ClosureID() == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Splice %s is outside any closure\n", sp.ID())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Splice %s moved to closure %s\n", sp.ID(), sp.ClosureID())
			return nil
		},
	}
	cmd.Flags().StringVar(&closureID, "closure", "", "target splice closure id (empty removes the splice from its closure)")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <a-cable-id> <b-cable-id>",
		Short: "Show which cable ends a splice between two cables would use",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.open()
			if err != nil {
				return err
			}
			defer w.close()

			cache := model.NewFieldCache(w.repo, w.names())
			ca, err := w.cable(ctx, cache, args[0])
			if err != nil {
				return err
			}
			cb, err := w.cable(ctx, cache, args[1])
			if err != nil {
				return err
			}
			res := endpoint.Resolve(ca, cb)
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"a_end":    res.Ends.A.End.String(),
					"b_end":    res.Ends.B.End.String(),
					"rule":     res.Rule.String(),
					"resolved": res.Resolved(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s %s (rule %s)\n",
				ca, res.Ends.A.End, cb, res.Ends.B.End, res.Rule)
			return nil
		},
	}
}
