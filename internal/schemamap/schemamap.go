// Package schemamap maps logical spine fields to remote properties and
// controls which fields are written on create versus update.
package schemamap

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/untoldecay/idse/internal/types"
)

// WriteMode controls when a property is written to the remote.
type WriteMode string

const (
	// CreateOnly properties are written once at creation and never again,
	// preserving later human edits on the remote side.
	CreateOnly WriteMode = "create_only"
	// AlwaysSync properties are written on both create and update.
	AlwaysSync WriteMode = "always_sync"
	// Optional properties are written whenever source data exists.
	Optional WriteMode = "optional"
)

// Logical spine fields a property can source from.
const (
	FieldTitle      = "title"
	FieldSession    = "session"
	FieldStage      = "stage"
	FieldStatus     = "status"
	FieldLayer      = "layer"
	FieldRunScope   = "run_scope"
	FieldVersion    = "version"
	FieldCapability = "capability"
	FieldUpstream   = "upstream"
	FieldDownstream = "downstream"
)

// Property binds one logical field to a remote property name and type.
type Property struct {
	Field  string    `toml:"field"`
	Remote string    `toml:"remote"`
	Type   string    `toml:"type"`
	Mode   WriteMode `toml:"mode"`
}

// Map is an ordered set of property bindings.
type Map struct {
	Properties []Property `toml:"property"`
}

// Default returns the built-in mapping: the minimum required remote
// properties plus the optional session-tag and relation properties.
func Default() *Map {
	return &Map{Properties: []Property{
		{Field: FieldTitle, Remote: "Title", Type: "title", Mode: CreateOnly},
		{Field: FieldSession, Remote: "Session", Type: "text", Mode: CreateOnly},
		{Field: FieldStage, Remote: "Stage", Type: "select", Mode: AlwaysSync},
		{Field: FieldStatus, Remote: "Status", Type: "select", Mode: AlwaysSync},
		{Field: FieldLayer, Remote: "Layer", Type: "select", Mode: Optional},
		{Field: FieldRunScope, Remote: "Run Scope", Type: "select", Mode: Optional},
		{Field: FieldVersion, Remote: "Version", Type: "text", Mode: Optional},
		{Field: FieldCapability, Remote: "Capability", Type: "text", Mode: Optional},
		{Field: FieldUpstream, Remote: "Upstream", Type: "relation", Mode: Optional},
		{Field: FieldDownstream, Remote: "Downstream", Type: "relation", Mode: Optional},
	}}
}

// Load reads a mapping from a TOML file and validates it.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema map: %w", err)
	}
	var m Map
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse schema map %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema map %s: %w", path, err)
	}
	return &m, nil
}

// required lists the fields every mapping must bind, with the write mode
// each must carry. Body content is not a property; it travels as the call
// body on create and update.
var required = map[string]WriteMode{
	FieldTitle:   CreateOnly,
	FieldSession: CreateOnly,
	FieldStage:   AlwaysSync,
	FieldStatus:  AlwaysSync,
}

// forbidden lists spine fields that must never be required remotely.
var forbidden = map[string]bool{
	"project": true,
	"idse_id": true,
}

// Validate checks the mapping against the contract: required fields bound
// with the right modes, no forbidden fields, no duplicate bindings.
func (m *Map) Validate() error {
	seen := make(map[string]bool)
	for _, p := range m.Properties {
		if p.Field == "" || p.Remote == "" {
			return fmt.Errorf("property binding needs both field and remote, got %+v", p)
		}
		if forbidden[p.Field] {
			return fmt.Errorf("field %s must not be mapped to a remote property", p.Field)
		}
		if seen[p.Field] {
			return fmt.Errorf("field %s is bound twice", p.Field)
		}
		seen[p.Field] = true
		switch p.Mode {
		case CreateOnly, AlwaysSync, Optional:
		default:
			return fmt.Errorf("field %s has unknown write mode %q", p.Field, p.Mode)
		}
		if want, ok := required[p.Field]; ok && p.Mode != want {
			return fmt.Errorf("field %s must use mode %s, got %s", p.Field, want, p.Mode)
		}
	}
	for field := range required {
		if !seen[field] {
			return fmt.Errorf("required field %s is not bound", field)
		}
	}
	return nil
}

// Source carries the spine-side data property values are built from.
// Optional fields source from session tags; relations carry remote ids
// already translated by the caller.
type Source struct {
	Title             string
	Session           string
	Stage             types.Stage
	Status            string
	Tags              map[string]string
	UpstreamRemoteIDs []string
}

func (m *Map) value(p Property, src Source) (any, bool) {
	switch p.Field {
	case FieldTitle:
		return src.Title, src.Title != ""
	case FieldSession:
		return src.Session, src.Session != ""
	case FieldStage:
		return string(src.Stage), src.Stage != ""
	case FieldStatus:
		return src.Status, src.Status != ""
	case FieldLayer, FieldRunScope, FieldVersion, FieldCapability:
		v, ok := src.Tags[p.Field]
		return v, ok && v != ""
	case FieldUpstream:
		return src.UpstreamRemoteIDs, len(src.UpstreamRemoteIDs) > 0
	case FieldDownstream:
		// Downstream is derived remotely from upstream relations; the
		// spine never pushes it.
		return nil, false
	}
	return nil, false
}

// BuildCreateProperties returns the property map for a create call:
// create_only and always_sync fields, plus optional fields with source data.
func (m *Map) BuildCreateProperties(src Source) map[string]any {
	return m.build(src, func(mode WriteMode) bool {
		return mode == CreateOnly || mode == AlwaysSync || mode == Optional
	})
}

// BuildUpdateProperties returns the property map for an update call.
// create_only fields are excluded so human edits on the remote survive.
func (m *Map) BuildUpdateProperties(src Source) map[string]any {
	return m.build(src, func(mode WriteMode) bool {
		return mode == AlwaysSync || mode == Optional
	})
}

func (m *Map) build(src Source, include func(WriteMode) bool) map[string]any {
	props := make(map[string]any)
	for _, p := range m.Properties {
		if !include(p.Mode) {
			continue
		}
		if v, ok := m.value(p, src); ok {
			props[p.Remote] = v
		}
	}
	return props
}
