package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// View is the common surface of the entity views.
type View interface {
	Record() *types.Record
	ID() string
	IPID() string
}

// Cable is a view over a cable record. Counts read -1 when the stored value
// is null.
type Cable struct {
	rec                   *types.Record
	ipid, buffers, fibers int
}

// Device is a view over a device record or one of its subtypes.
type Device struct {
	rec                 *types.Record
	ipid, input, output int
}

// SpliceClosure is a view over a splice closure record.
type SpliceClosure struct {
	rec  *types.Record
	ipid int
}

// Wrap returns the view matching the class of rec: *Cable, *Device or
// *SpliceClosure.
func (c *FieldCache) Wrap(ctx context.Context, rec *types.Record) (View, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", types.ErrArgument)
	}
	switch {
	case c.names.IsCableClass(rec.Class):
		return c.WrapCable(ctx, rec)
	case c.names.IsDeviceClass(rec.Class):
		return c.WrapDevice(ctx, rec)
	case c.names.IsSpliceClosureClass(rec.Class):
		return c.WrapSpliceClosure(ctx, rec)
	default:
		return nil, fmt.Errorf("%w: class %q has no view", types.ErrArgument, rec.Class)
	}
}

// WrapCable returns a Cable view over rec.
func (c *FieldCache) WrapCable(ctx context.Context, rec *types.Record) (*Cable, error) {
	if err := c.expectClass(rec, c.names.IsCableClass, c.names.Classes.Cable); err != nil {
		return nil, err
	}
	if _, err := c.CheckRecord(ctx, rec); err != nil {
		return nil, err
	}
	f := c.names.Fields
	idx, err := c.resolve(ctx, rec.Class, f.IPID, f.BufferCount, f.FiberCount)
	if err != nil {
		return nil, err
	}
	return &Cable{rec: rec, ipid: idx[0], buffers: idx[1], fibers: idx[2]}, nil
}

// WrapDevice returns a Device view over rec.
func (c *FieldCache) WrapDevice(ctx context.Context, rec *types.Record) (*Device, error) {
	if err := c.expectClass(rec, c.names.IsDeviceClass, c.names.Classes.Device); err != nil {
		return nil, err
	}
	if _, err := c.CheckRecord(ctx, rec); err != nil {
		return nil, err
	}
	f := c.names.Fields
	idx, err := c.resolve(ctx, rec.Class, f.IPID, f.InputPorts, f.OutputPorts)
	if err != nil {
		return nil, err
	}
	return &Device{rec: rec, ipid: idx[0], input: idx[1], output: idx[2]}, nil
}

// WrapSpliceClosure returns a SpliceClosure view over rec.
func (c *FieldCache) WrapSpliceClosure(ctx context.Context, rec *types.Record) (*SpliceClosure, error) {
	if err := c.expectClass(rec, c.names.IsSpliceClosureClass, c.names.Classes.SpliceClosure); err != nil {
		return nil, err
	}
	if _, err := c.CheckRecord(ctx, rec); err != nil {
		return nil, err
	}
	i, err := c.Index(ctx, rec.Class, c.names.Fields.IPID)
	if err != nil {
		return nil, err
	}
	return &SpliceClosure{rec: rec, ipid: i}, nil
}

func (c *FieldCache) expectClass(rec *types.Record, match func(string) bool, want string) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", types.ErrArgument)
	}
	if rec.Class == "" {
		return fmt.Errorf("%w: record has no class", types.ErrArgument)
	}
	if !match(rec.Class) {
		return fmt.Errorf("%w: expected %s record, got %s", types.ErrArgument, want, rec.Class)
	}
	return nil
}

func (v *Cable) Record() *types.Record { return v.rec }
func (v *Cable) ID() string            { return v.rec.ID }

// IPID returns the identity, or "" when it is missing.
func (v *Cable) IPID() string { return toString(v.rec.Value(v.ipid)) }

// HasIPID reports whether the identity is present.
func (v *Cable) HasIPID() bool { return v.IPID() != "" }

// BufferTubeCount returns the buffer tube count, or -1 when unknown.
func (v *Cable) BufferTubeCount() int { return countOrSentinel(v.rec.Value(v.buffers)) }

// FiberCount returns the per-tube strand count, or -1 when unknown.
func (v *Cable) FiberCount() int { return countOrSentinel(v.rec.Value(v.fibers)) }

// BufferTubeCountIsNull reports whether the buffer count field is null.
func (v *Cable) BufferTubeCountIsNull() bool { return v.rec.Value(v.buffers) == nil }

// FiberCountIsNull reports whether the fiber count field is null.
func (v *Cable) FiberCountIsNull() bool { return v.rec.Value(v.fibers) == nil }

// SetFiberCount writes the fiber count in memory. The caller stores the
// record.
func (v *Cable) SetFiberCount(n int) {
	v.rec.Values[v.fibers] = int64(n)
}

// StrandCount returns the number of distinct strands, or -1 when either
// count is unknown.
func (v *Cable) StrandCount() int {
	b, f := v.BufferTubeCount(), v.FiberCount()
	if b < 0 || f < 0 {
		return -1
	}
	return b * f
}

// From returns the first vertex of the cable's shape.
func (v *Cable) From() (types.Point, bool) { return v.rec.From() }

// To returns the last vertex of the cable's shape.
func (v *Cable) To() (types.Point, bool) { return v.rec.To() }

// String identifies the cable in log output.
func (v *Cable) String() string {
	if id := v.IPID(); id != "" {
		return id
	}
	return v.rec.ID
}

func (v *Device) Record() *types.Record { return v.rec }
func (v *Device) ID() string            { return v.rec.ID }
func (v *Device) IPID() string          { return toString(v.rec.Value(v.ipid)) }

// InputPorts returns the input port count, or -1 when unknown.
func (v *Device) InputPorts() int { return countOrSentinel(v.rec.Value(v.input)) }

// OutputPorts returns the output port count, or -1 when unknown.
func (v *Device) OutputPorts() int { return countOrSentinel(v.rec.Value(v.output)) }

// Ports returns the port count for a port type, or -1 when unknown or the
// type is not recognized.
func (v *Device) Ports(portType string) int {
	switch strings.ToLower(portType) {
	case PortInput:
		return v.InputPorts()
	case PortOutput:
		return v.OutputPorts()
	default:
		return -1
	}
}

func (v *SpliceClosure) Record() *types.Record { return v.rec }
func (v *SpliceClosure) ID() string            { return v.rec.ID }
func (v *SpliceClosure) IPID() string          { return toString(v.rec.Value(v.ipid)) }
