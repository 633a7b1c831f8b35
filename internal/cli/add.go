package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fiberplant/internal/model"
	"github.com/mesh-intelligence/fiberplant/internal/session"
	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

func newAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a cable, device, or splice closure",
	}
	cmd.AddCommand(newAddCableCmd(a), newAddDeviceCmd(a), newAddClosureCmd(a))
	return cmd
}

// cableFlags holds the values of the add cable flags.
type cableFlags struct {
	ipid         string
	buffers      int
	fibers       int
	fiberRecords int
	shape        string
}

func newAddCableCmd(a *app) *cobra.Command {
	var f cableFlags
	cmd := &cobra.Command{
		Use:   "cable",
		Short: "Add a cable with its buffer tube and fiber records",
		Long: `Add a cable. Counts left unset are stored as null. One buffer tube record is
created per buffer and, unless --fiber-records says otherwise, one fiber
record per strand (buffers x fibers).

Example:
  fiberplant add cable --ipid C1 --buffers 2 --fibers 12 --shape "0,0 10,0"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shape, err := parseShape(f.shape)
			if err != nil {
				return err
			}
			if len(shape) == 1 {
				return usageErrorf("a cable shape needs at least two vertices")
			}
			flags := cmd.Flags()
			var buffers, fibers any
			tubes, strands := 0, 0
			if flags.Changed("buffers") {
				buffers = int64(f.buffers)
				tubes = max(f.buffers, 0)
			}
			if flags.Changed("fibers") {
				fibers = int64(f.fibers)
			}
			if flags.Changed("buffers") && flags.Changed("fibers") {
				strands = max(f.buffers*f.fibers, 0)
			}
			if flags.Changed("fiber-records") {
				if f.fiberRecords < 0 {
					return usageErrorf("--fiber-records must not be negative")
				}
				strands = f.fiberRecords
			}

			return a.insertFeature(cmd, func(ctx context.Context, s *session.Session, w *workspace) (*types.Record, error) {
				names := w.names()
				rec, err := newRecord(ctx, s.Cache(), names.Classes.Cable, map[string]any{
					names.Fields.IPID:        optional(f.ipid),
					names.Fields.BufferCount: buffers,
					names.Fields.FiberCount:  fibers,
				})
				if err != nil {
					return nil, err
				}
				rec.Shape = shape
				err = s.Insert(ctx, rec, func(cable *types.Record) error {
					if err := addChildren(ctx, w, s.Cache(), cable, names.Classes.BufferTube, names.Relations.CableBuffer, model.FieldTubeNumber, tubes); err != nil {
						return err
					}
					return addChildren(ctx, w, s.Cache(), cable, names.Classes.Fiber, names.Relations.CableFiber, model.FieldStrandNumber, strands)
				})
				return rec, err
			})
		},
	}
	cmd.Flags().StringVar(&f.ipid, "ipid", "", "cable identity")
	cmd.Flags().IntVar(&f.buffers, "buffers", 0, "buffer tube count")
	cmd.Flags().IntVar(&f.fibers, "fibers", 0, "fibers per buffer tube")
	cmd.Flags().IntVar(&f.fiberRecords, "fiber-records", 0, "fiber records to create (default: buffers x fibers)")
	cmd.Flags().StringVar(&f.shape, "shape", "", `vertices as "x,y x,y ..."`)
	return cmd
}

func newAddDeviceCmd(a *app) *cobra.Command {
	var (
		ipid    string
		class   string
		inputs  int
		outputs int
		at      string
	)
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Add a device or device subtype",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shape, err := parseShape(at)
			if err != nil {
				return err
			}
			if inputs < 0 || outputs < 0 {
				return usageErrorf("port counts must not be negative")
			}
			return a.insertFeature(cmd, func(ctx context.Context, s *session.Session, w *workspace) (*types.Record, error) {
				names := w.names()
				if class == "" {
					class = names.Classes.Device
				}
				if !names.IsDeviceClass(class) {
					return nil, usageErrorf("%s is not a device class", class)
				}
				rec, err := newRecord(ctx, s.Cache(), class, map[string]any{
					names.Fields.IPID:        optional(ipid),
					names.Fields.InputPorts:  int64(inputs),
					names.Fields.OutputPorts: int64(outputs),
				})
				if err != nil {
					return nil, err
				}
				rec.Shape = shape
				return rec, s.Insert(ctx, rec, nil)
			})
		},
	}
	cmd.Flags().StringVar(&ipid, "ipid", "", "device identity")
	cmd.Flags().StringVar(&class, "class", "", "device class or subtype (default: the device class)")
	cmd.Flags().IntVar(&inputs, "inputs", 0, "input port count")
	cmd.Flags().IntVar(&outputs, "outputs", 0, "output port count")
	cmd.Flags().StringVar(&at, "at", "", `location as "x,y"`)
	return cmd
}

func newAddClosureCmd(a *app) *cobra.Command {
	var ipid, at string
	cmd := &cobra.Command{
		Use:   "closure",
		Short: "Add a splice closure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shape, err := parseShape(at)
			if err != nil {
				return err
			}
			return a.insertFeature(cmd, func(ctx context.Context, s *session.Session, w *workspace) (*types.Record, error) {
				names := w.names()
				rec, err := newRecord(ctx, s.Cache(), names.Classes.SpliceClosure, map[string]any{
					names.Fields.IPID: optional(ipid),
				})
				if err != nil {
					return nil, err
				}
				rec.Shape = shape
				return rec, s.Insert(ctx, rec, nil)
			})
		},
	}
	cmd.Flags().StringVar(&ipid, "ipid", "", "closure identity")
	cmd.Flags().StringVar(&at, "at", "", `location as "x,y"`)
	return cmd
}

// insertFeature runs create in one saved edit session and prints the new
// record.
func (a *app) insertFeature(cmd *cobra.Command, create func(context.Context, *session.Session, *workspace) (*types.Record, error)) error {
	ctx := cmd.Context()
	w, err := a.open()
	if err != nil {
		return err
	}
	defer w.close()

	var view recordView
	err = w.edit(ctx, func(s *session.Session) error {
		rec, err := create(ctx, s, w)
		if err != nil {
			return err
		}
		view, err = newRecordView(ctx, s.Cache(), rec)
		return err
	})
	if err != nil {
		return err
	}
	if a.flags.jsonMode {
		return printJSON(cmd.OutOrStdout(), view)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", view.Class, view.ID)
	return nil
}

// newRecord builds an unsaved record of class with the given field values.
func newRecord(ctx context.Context, cache *model.FieldCache, class string, values map[string]any) (*types.Record, error) {
	schema, err := cache.Schema(ctx, class)
	if err != nil {
		return nil, err
	}
	rec := types.NewRecord(schema)
	for field, v := range values {
		i, err := cache.Index(ctx, schema.Name, field)
		if err != nil {
			return nil, err
		}
		rec.Values[i] = v
	}
	return rec, nil
}

// addChildren inserts n numbered records of class related to parent. It
// runs inside the caller's edit operation.
func addChildren(ctx context.Context, w *workspace, cache *model.FieldCache, parent *types.Record, class, relation, numberField string, n int) error {
	if n == 0 {
		return nil
	}
	h, err := w.repo.OpenRelation(ctx, relation)
	if err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		rec, err := newRecord(ctx, cache, class, map[string]any{numberField: int64(i)})
		if err != nil {
			return err
		}
		if _, err := w.repo.Insert(ctx, rec); err != nil {
			return err
		}
		if err := h.Relate(ctx, parent, rec); err != nil {
			return err
		}
	}
	return nil
}

// optional maps an empty flag value to null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
