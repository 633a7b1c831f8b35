package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Field layout of splice records.
const (
	SpliceACable    = "a_cable"
	SpliceAFromEnd  = "a_from_end"
	SpliceAStrand   = "a_strand"
	SpliceBCable    = "b_cable"
	SpliceBFromEnd  = "b_from_end"
	SpliceBStrand   = "b_strand"
	SpliceClosureID = "closure"
)

// Field layout of connection records.
const (
	ConnCable        = "cable"
	ConnCableFromEnd = "cable_from_end"
	ConnStrand       = "strand"
	ConnDevice       = "device"
	ConnPort         = "port"
	ConnPortType     = "port_type"
)

// Device port types.
const (
	PortInput  = "input"
	PortOutput = "output"
)

// SpliceFields returns the field list of the splice class.
func SpliceFields() []string {
	return []string{SpliceACable, SpliceAFromEnd, SpliceAStrand, SpliceBCable, SpliceBFromEnd, SpliceBStrand, SpliceClosureID}
}

// ConnectionFields returns the field list of the connection class.
func ConnectionFields() []string {
	return []string{ConnCable, ConnCableFromEnd, ConnStrand, ConnDevice, ConnPort, ConnPortType}
}

// End names one physical end of a cable.
type End int

const (
	EndFrom End = iota
	EndTo
)

func (e End) String() string {
	if e == EndTo {
		return "to"
	}
	return "from"
}

// IsFromEnd reports whether e is the From end.
func (e End) IsFromEnd() bool { return e == EndFrom }

// EndOf converts a stored isFromEnd flag.
func EndOf(isFromEnd bool) End {
	if isFromEnd {
		return EndFrom
	}
	return EndTo
}

// JoinEnd is a cable together with the end available for joining.
type JoinEnd struct {
	Cable *Cable
	End   End
}

// Point returns the location of the joining end.
func (j JoinEnd) Point() (types.Point, bool) {
	if j.Cable == nil {
		return types.Point{}, false
	}
	if j.End == EndTo {
		return j.Cable.To()
	}
	return j.Cable.From()
}

// PairedJoinEnds carries both sides of a two-cable splice.
type PairedJoinEnds struct {
	A JoinEnd
	B JoinEnd
}

// Splice is a view over a splice record.
type Splice struct {
	rec *types.Record
	idx []int
}

// Connection is a view over a connection record.
type Connection struct {
	rec *types.Record
	idx []int
}

// WrapSplice returns a Splice view over rec.
func (c *FieldCache) WrapSplice(ctx context.Context, rec *types.Record) (*Splice, error) {
	if err := c.expectClass(rec, c.isClass(c.names.Classes.Splice), c.names.Classes.Splice); err != nil {
		return nil, err
	}
	if _, err := c.CheckRecord(ctx, rec); err != nil {
		return nil, err
	}
	idx, err := c.resolve(ctx, rec.Class, SpliceFields()...)
	if err != nil {
		return nil, err
	}
	return &Splice{rec: rec, idx: idx}, nil
}

// WrapConnection returns a Connection view over rec.
func (c *FieldCache) WrapConnection(ctx context.Context, rec *types.Record) (*Connection, error) {
	if err := c.expectClass(rec, c.isClass(c.names.Classes.Connection), c.names.Classes.Connection); err != nil {
		return nil, err
	}
	if _, err := c.CheckRecord(ctx, rec); err != nil {
		return nil, err
	}
	idx, err := c.resolve(ctx, rec.Class, ConnectionFields()...)
	if err != nil {
		return nil, err
	}
	return &Connection{rec: rec, idx: idx}, nil
}

// NewSplice builds an unsaved splice record joining the two ends. closure
// may be nil.
func (c *FieldCache) NewSplice(ctx context.Context, ends PairedJoinEnds, aStrand, bStrand int, closure *SpliceClosure) (*Splice, error) {
	if ends.A.Cable == nil || ends.B.Cable == nil {
		return nil, fmt.Errorf("%w: splice needs two cables", types.ErrArgument)
	}
	s, err := c.Schema(ctx, c.names.Classes.Splice)
	if err != nil {
		return nil, err
	}
	sp, err := c.WrapSplice(ctx, types.NewRecord(s))
	if err != nil {
		return nil, err
	}
	v := sp.rec.Values
	v[sp.idx[0]] = ends.A.Cable.ID()
	v[sp.idx[1]] = ends.A.End.IsFromEnd()
	v[sp.idx[2]] = int64(aStrand)
	v[sp.idx[3]] = ends.B.Cable.ID()
	v[sp.idx[4]] = ends.B.End.IsFromEnd()
	v[sp.idx[5]] = int64(bStrand)
	if closure != nil {
		v[sp.idx[6]] = closure.ID()
	}
	return sp, nil
}

// NewConnection builds an unsaved connection record from a cable end to a
// device port.
func (c *FieldCache) NewConnection(ctx context.Context, end JoinEnd, strand int, dev *Device, port int, portType string) (*Connection, error) {
	if end.Cable == nil || dev == nil {
		return nil, fmt.Errorf("%w: connection needs a cable and a device", types.ErrArgument)
	}
	s, err := c.Schema(ctx, c.names.Classes.Connection)
	if err != nil {
		return nil, err
	}
	cn, err := c.WrapConnection(ctx, types.NewRecord(s))
	if err != nil {
		return nil, err
	}
	v := cn.rec.Values
	v[cn.idx[0]] = end.Cable.ID()
	v[cn.idx[1]] = end.End.IsFromEnd()
	v[cn.idx[2]] = int64(strand)
	v[cn.idx[3]] = dev.ID()
	v[cn.idx[4]] = int64(port)
	v[cn.idx[5]] = portType
	return cn, nil
}

func (c *FieldCache) isClass(name string) func(string) bool {
	return func(class string) bool {
		return class != "" && strings.EqualFold(class, name)
	}
}

func (v *Splice) Record() *types.Record { return v.rec }
func (v *Splice) ID() string            { return v.rec.ID }
func (v *Splice) ACableID() string      { return toString(v.rec.Value(v.idx[0])) }
func (v *Splice) AEnd() End             { return EndOf(toBool(v.rec.Value(v.idx[1]))) }
func (v *Splice) AStrand() int          { return countOrSentinel(v.rec.Value(v.idx[2])) }
func (v *Splice) BCableID() string      { return toString(v.rec.Value(v.idx[3])) }
func (v *Splice) BEnd() End             { return EndOf(toBool(v.rec.Value(v.idx[4]))) }
func (v *Splice) BStrand() int          { return countOrSentinel(v.rec.Value(v.idx[5])) }

// ClosureID returns the housing closure, or "" for a splice outside any
// closure.
func (v *Splice) ClosureID() string { return toString(v.rec.Value(v.idx[6])) }

// SetClosure rehouses the splice in memory; nil takes it out of any closure.
func (v *Splice) SetClosure(cl *SpliceClosure) {
	if cl == nil {
		v.rec.Values[v.idx[6]] = nil
		return
	}
	v.rec.Values[v.idx[6]] = cl.ID()
}

func (v *Connection) Record() *types.Record { return v.rec }
func (v *Connection) ID() string            { return v.rec.ID }
func (v *Connection) CableID() string       { return toString(v.rec.Value(v.idx[0])) }
func (v *Connection) CableEnd() End         { return EndOf(toBool(v.rec.Value(v.idx[1]))) }
func (v *Connection) Strand() int           { return countOrSentinel(v.rec.Value(v.idx[2])) }
func (v *Connection) DeviceID() string      { return toString(v.rec.Value(v.idx[3])) }
func (v *Connection) Port() int             { return countOrSentinel(v.rec.Value(v.idx[4])) }
func (v *Connection) PortType() string      { return toString(v.rec.Value(v.idx[5])) }
