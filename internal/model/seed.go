package model

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/fiberplant/pkg/types"
)

// Bookkeeping fields carried by every feature class. They are filled by the
// attribute defaulting rules, not by the model.
const (
	FieldGlobalID   = "global_id"
	FieldCreatedOn  = "created_on"
	FieldModifiedOn = "modified_on"
)

// Fields of the buffer tube and fiber classes.
const (
	FieldTubeNumber   = "tube_number"
	FieldStrandNumber = "strand_number"
)

// Layout returns the class and relation definitions of a fiber plant
// workspace using the configured names.
func Layout(names types.SchemaConfig) ([]types.ClassSchema, []types.RelationClass) {
	f := names.Fields
	stamp := []string{FieldGlobalID, FieldCreatedOn, FieldModifiedOn}

	deviceFields := append([]string{f.IPID, f.InputPorts, f.OutputPorts}, stamp...)
	classes := []types.ClassSchema{
		{Name: names.Classes.Cable, Geometry: types.GeometryPolyline,
			Fields: append([]string{f.IPID, f.BufferCount, f.FiberCount}, stamp...)},
		{Name: names.Classes.Device, Geometry: types.GeometryPoint, Fields: deviceFields},
		{Name: names.Classes.SpliceClosure, Geometry: types.GeometryPoint,
			Fields: append([]string{f.IPID}, stamp...)},
		{Name: names.Classes.Splice, Geometry: types.GeometryNone,
			Fields: append(SpliceFields(), FieldGlobalID, FieldCreatedOn)},
		{Name: names.Classes.Connection, Geometry: types.GeometryNone,
			Fields: append(ConnectionFields(), FieldGlobalID, FieldCreatedOn)},
		{Name: names.Classes.BufferTube, Geometry: types.GeometryNone, Fields: []string{FieldTubeNumber}},
		{Name: names.Classes.Fiber, Geometry: types.GeometryNone, Fields: []string{FieldStrandNumber}},
	}
	for _, sub := range names.Classes.DeviceSubtypes {
		classes = append(classes, types.ClassSchema{
			Name:     sub,
			Geometry: types.GeometryPoint,
			Fields:   append([]string(nil), deviceFields...),
		})
	}

	r := names.Relations
	c := names.Classes
	relations := []types.RelationClass{
		{Name: r.CableBuffer, Origin: c.Cable, Destination: c.BufferTube},
		{Name: r.CableFiber, Origin: c.Cable, Destination: c.Fiber},
		{Name: r.CableSplice, Origin: c.Cable, Destination: c.Splice},
		{Name: r.CableConnection, Origin: c.Cable, Destination: c.Connection},
		{Name: r.ClosureSplice, Origin: c.SpliceClosure, Destination: c.Splice},
		{Name: r.DeviceConnection, Origin: c.Device, Destination: c.Connection},
	}
	return classes, relations
}

// Definer defines classes and relation classes. types.Repository satisfies
// it.
type Definer interface {
	DefineClass(ctx context.Context, schema types.ClassSchema) error
	DefineRelation(ctx context.Context, rel types.RelationClass) error
}

// DefineLayout writes the workspace layout to repo. Existing definitions
// with the same names are replaced.
func DefineLayout(ctx context.Context, repo Definer, names types.SchemaConfig) error {
	if err := names.Validate(); err != nil {
		return err
	}
	classes, relations := Layout(names)
	for _, cs := range classes {
		if err := repo.DefineClass(ctx, cs); err != nil {
			return fmt.Errorf("defining class %s: %w", cs.Name, err)
		}
	}
	for _, rel := range relations {
		if err := repo.DefineRelation(ctx, rel); err != nil {
			return fmt.Errorf("defining relation %s: %w", rel.Name, err)
		}
	}
	return nil
}
