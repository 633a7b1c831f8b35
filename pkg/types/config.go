package types

import (
	"errors"
	"strings"
)

// Config holds backend selection, its parameters, and the named-field
// contract the connectivity model depends on.
type Config struct {
	Backend string       `json:"backend" yaml:"backend"`
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Schema  SchemaConfig `json:"schema" yaml:"schema"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// SchemaConfig names the classes, fields, and relation classes of a
// workspace. Different workspaces may use different names; nothing in the
// model hard-codes them.
type SchemaConfig struct {
	Classes   ClassNames    `json:"classes" yaml:"classes" mapstructure:"classes"`
	Fields    FieldNames    `json:"fields" yaml:"fields" mapstructure:"fields"`
	Relations RelationNames `json:"relations" yaml:"relations" mapstructure:"relations"`
}

// ClassNames lists the record class names.
type ClassNames struct {
	Cable          string   `json:"cable" yaml:"cable" mapstructure:"cable"`
	Device         string   `json:"device" yaml:"device" mapstructure:"device"`
	DeviceSubtypes []string `json:"device_subtypes" yaml:"device_subtypes" mapstructure:"device_subtypes"`
	SpliceClosure  string   `json:"splice_closure" yaml:"splice_closure" mapstructure:"splice_closure"`
	Splice         string   `json:"splice" yaml:"splice" mapstructure:"splice"`
	Connection     string   `json:"connection" yaml:"connection" mapstructure:"connection"`
	BufferTube     string   `json:"buffer_tube" yaml:"buffer_tube" mapstructure:"buffer_tube"`
	Fiber          string   `json:"fiber" yaml:"fiber" mapstructure:"fiber"`
}

// FieldNames lists the named fields read and written by the model.
type FieldNames struct {
	IPID        string `json:"ipid" yaml:"ipid" mapstructure:"ipid"`
	BufferCount string `json:"buffer_count" yaml:"buffer_count" mapstructure:"buffer_count"`
	FiberCount  string `json:"fiber_count" yaml:"fiber_count" mapstructure:"fiber_count"`
	InputPorts  string `json:"input_ports" yaml:"input_ports" mapstructure:"input_ports"`
	OutputPorts string `json:"output_ports" yaml:"output_ports" mapstructure:"output_ports"`
}

// RelationNames lists the relation classes maintained by the repository.
type RelationNames struct {
	CableBuffer      string `json:"cable_buffer" yaml:"cable_buffer" mapstructure:"cable_buffer"`
	CableFiber       string `json:"cable_fiber" yaml:"cable_fiber" mapstructure:"cable_fiber"`
	CableSplice      string `json:"cable_splice" yaml:"cable_splice" mapstructure:"cable_splice"`
	CableConnection  string `json:"cable_connection" yaml:"cable_connection" mapstructure:"cable_connection"`
	ClosureSplice    string `json:"closure_splice" yaml:"closure_splice" mapstructure:"closure_splice"`
	DeviceConnection string `json:"device_connection" yaml:"device_connection" mapstructure:"device_connection"`
}

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrSchemaIncomplete = errors.New("schema configuration is incomplete")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// DefaultSchema returns the class, field, and relation names used when a
// workspace does not override them.
func DefaultSchema() SchemaConfig {
	return SchemaConfig{
		Classes: ClassNames{
			Cable:          "FiberCable",
			Device:         "FiberDevice",
			DeviceSubtypes: []string{"Splitter", "PatchPanel", "OpticalTerminal"},
			SpliceClosure:  "SpliceClosure",
			Splice:         "FiberSplice",
			Connection:     "FiberConnection",
			BufferTube:     "BufferTube",
			Fiber:          "Fiber",
		},
		Fields: FieldNames{
			IPID:        "ipid",
			BufferCount: "buffer_count",
			FiberCount:  "fiber_count",
			InputPorts:  "input_ports",
			OutputPorts: "output_ports",
		},
		Relations: RelationNames{
			CableBuffer:      "cable_buffer",
			CableFiber:       "cable_fiber",
			CableSplice:      "cable_splice",
			CableConnection:  "cable_connection",
			ClosureSplice:    "closure_splice",
			DeviceConnection: "device_connection",
		},
	}
}

// DefaultConfig returns a SQLite config for dataDir with the default schema.
func DefaultConfig(dataDir string) Config {
	return Config{
		Backend: BackendSQLite,
		DataDir: dataDir,
		Schema:  DefaultSchema(),
	}
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return c.Schema.Validate()
}

// Validate reports ErrSchemaIncomplete when a required name is empty.
func (s SchemaConfig) Validate() error {
	required := []string{
		s.Classes.Cable, s.Classes.Device, s.Classes.SpliceClosure,
		s.Classes.Splice, s.Classes.Connection, s.Classes.BufferTube, s.Classes.Fiber,
		s.Fields.IPID, s.Fields.BufferCount, s.Fields.FiberCount,
		s.Fields.InputPorts, s.Fields.OutputPorts,
		s.Relations.CableBuffer, s.Relations.CableFiber, s.Relations.CableSplice,
		s.Relations.CableConnection, s.Relations.ClosureSplice, s.Relations.DeviceConnection,
	}
	for _, name := range required {
		if strings.TrimSpace(name) == "" {
			return ErrSchemaIncomplete
		}
	}
	return nil
}

// IsCableClass reports whether class names the cable class (case-insensitive).
func (s SchemaConfig) IsCableClass(class string) bool {
	return strings.EqualFold(class, s.Classes.Cable)
}

// IsSpliceClosureClass reports whether class names the splice closure class.
func (s SchemaConfig) IsSpliceClosureClass(class string) bool {
	return strings.EqualFold(class, s.Classes.SpliceClosure)
}

// IsDeviceClass reports whether class names the device class or one of its
// configured subtypes.
func (s SchemaConfig) IsDeviceClass(class string) bool {
	if strings.EqualFold(class, s.Classes.Device) {
		return true
	}
	for _, sub := range s.Classes.DeviceSubtypes {
		if strings.EqualFold(class, sub) {
			return true
		}
	}
	return false
}
