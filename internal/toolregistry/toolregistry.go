// Package toolregistry holds the static catalog of browser-automation
// tools the gateway exposes over REST, and validates request payloads
// against each tool's declared field schema (spec section 4.3).
//
// Author: momentics <momentics@gmail.com>
package toolregistry

import (
	"fmt"

	"github.com/momentics/hioload-gateway/internal/gwerr"
)

// FieldKind is the JSON type a tool field is expected to hold.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindObject FieldKind = "object"
	KindArray  FieldKind = "array"
)

// Field describes one parameter of a Tool's request payload.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// Tool is one entry of the static automation-tool catalog. Every tool is
// invoked as POST /execute/{Name} and documented at GET /tools/{Name}.
type Tool struct {
	Name        string
	Fields      []Field
	Description string

	// LicenseSubsurface marks tools the router resolves against the
	// local LicenseManager instead of forwarding to EngineChannel, per
	// spec section 4.6 item 2.
	LicenseSubsurface bool
}

// maxValidationErrors bounds the combined number of missing and unknown
// field names surfaced in one response.
const maxValidationErrors = 32

// Registry is the process-wide, read-only tool catalog.
type Registry struct {
	byName map[string]*Tool
	tools  []*Tool
}

// New builds a Registry from the given catalog. The gateway's own
// catalog content is out of scope (spec section 1); New accepts
// whatever catalog the caller supplies, typically DefaultCatalog().
func New(tools []*Tool) *Registry {
	r := &Registry{byName: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		r.byName[t.Name] = t
		r.tools = append(r.tools, t)
	}
	return r
}

// DefaultCatalog is a minimal representative catalog covering the tool
// classes spec section 2 names (navigation, interaction, extraction)
// plus the license-subsurface tools spec section 4.6 item 2 names.
func DefaultCatalog() []*Tool {
	return []*Tool{
		{
			Name: "browser_navigate",
			Fields: []Field{
				{Name: "context_id", Kind: KindString, Required: true},
				{Name: "url", Kind: KindString, Required: true},
				{Name: "wait_until", Kind: KindString, Required: false},
			},
			Description: "Navigate the active browser context to a URL.",
		},
		{
			Name: "browser_click",
			Fields: []Field{
				{Name: "selector", Kind: KindString, Required: true},
				{Name: "context_id", Kind: KindString, Required: true},
			},
			Description: "Click the first element matching a selector.",
		},
		{
			Name: "browser_type",
			Fields: []Field{
				{Name: "selector", Kind: KindString, Required: true},
				{Name: "context_id", Kind: KindString, Required: true},
				{Name: "text", Kind: KindString, Required: true},
			},
			Description: "Type text into a focused element.",
		},
		{
			Name: "browser_extract_text",
			Fields: []Field{
				{Name: "selector", Kind: KindString, Required: true},
				{Name: "context_id", Kind: KindString, Required: true},
			},
			Description: "Extract rendered text content from a selector.",
		},
		{
			Name: "browser_screenshot",
			Fields: []Field{
				{Name: "context_id", Kind: KindString, Required: true},
				{Name: "full_page", Kind: KindBool, Required: false},
			},
			Description: "Capture a screenshot of the active page.",
		},
		{
			Name: "browser_wait",
			Fields: []Field{
				{Name: "context_id", Kind: KindString, Required: true},
				{Name: "selector", Kind: KindString, Required: false},
				{Name: "timeout_ms", Kind: KindNumber, Required: false},
			},
			Description: "Wait for a selector to appear or a timeout to elapse.",
		},
		{
			Name:              "get_license_status",
			Fields:            nil,
			Description:       "Report whether the current license is valid.",
			LicenseSubsurface: true,
		},
		{
			Name:              "get_hardware_fingerprint",
			Fields:            nil,
			Description:       "Report this machine's license hardware fingerprint.",
			LicenseSubsurface: true,
		},
		{
			Name: "add_license",
			Fields: []Field{
				{Name: "key", Kind: KindString, Required: true},
			},
			Description:       "Activate a license key and restart the browser engine.",
			LicenseSubsurface: true,
		},
		{
			Name:              "remove_license",
			Fields:            nil,
			Description:       "Remove the active license and restart the browser engine.",
			LicenseSubsurface: true,
		},
		{
			Name:              "get_license_info",
			Fields:            nil,
			Description:       "Report full license status, including expiry.",
			LicenseSubsurface: true,
		},
	}
}

// Lookup resolves a tool name to its Tool, or nil if unknown.
func (r *Registry) Lookup(name string) *Tool {
	return r.byName[name]
}

// All returns every registered tool, for the catalog listing endpoint.
func (r *Registry) All() []*Tool {
	return r.tools
}

// Validate checks payload against t's field schema, producing a
// structured gwerr.Error carrying missing_fields, unknown_fields, and a
// supported_fields hint when validation fails, per spec section 4.3.
// A value of the wrong kind also fails validation, but the error does
// not say which field or what kind was expected.
func (t *Tool) Validate(payload map[string]any) error {
	var missing, unknown []string

	declared := make(map[string]Field, len(t.Fields))
	for _, f := range t.Fields {
		declared[f.Name] = f
		if f.Required {
			if _, ok := payload[f.Name]; !ok {
				missing = append(missing, f.Name)
			}
		}
	}
	for k := range payload {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}

	var typeErrs []string
	for name, f := range declared {
		v, ok := payload[name]
		if !ok {
			continue
		}
		if !kindMatches(f.Kind, v) {
			typeErrs = append(typeErrs, fmt.Sprintf("%s: expected %s", name, f.Kind))
		}
	}

	if len(missing) == 0 && len(unknown) == 0 && len(typeErrs) == 0 {
		return nil
	}

	total := len(missing) + len(unknown) + len(typeErrs)
	if total > maxValidationErrors {
		missing = truncate(missing, maxValidationErrors)
		unknown = truncate(unknown, maxValidationErrors-len(missing))
	}

	err := gwerr.New(gwerr.CodeValidation, fmt.Sprintf("validation failed for tool %q", t.Name))
	if len(missing) > 0 {
		err = err.With("missing_fields", missing)
	}
	if len(unknown) > 0 {
		err = err.With("unknown_fields", unknown)
	}
	err = err.With("supported_fields", supportedFieldsHint(t.Fields))
	return err
}

func kindMatches(kind FieldKind, v any) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := v.(float64)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func supportedFieldsHint(fields []Field) string {
	s := ""
	for i, f := range fields {
		if i > 0 {
			s += ", "
		}
		s += f.Name
		if f.Required {
			s += "*"
		}
	}
	return s
}

func truncate(s []string, max int) []string {
	if max <= 0 {
		return nil
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
