package toolregistry

import (
	"testing"

	"github.com/momentics/hioload-gateway/internal/gwerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupResolvesKnownName(t *testing.T) {
	r := New(DefaultCatalog())
	tool := r.Lookup("browser_click")
	require.NotNil(t, tool)
	assert.Equal(t, "browser_click", tool.Name)
}

func TestLookupReturnsNilForUnknownName(t *testing.T) {
	r := New(DefaultCatalog())
	assert.Nil(t, r.Lookup("does-not-exist"))
}

func TestValidatePassesWithAllRequiredFields(t *testing.T) {
	r := New(DefaultCatalog())
	tool := r.Lookup("browser_click")
	err := tool.Validate(map[string]any{
		"selector":   "#submit",
		"context_id": "ctx-1",
	})
	assert.NoError(t, err)
}

func TestValidateReportsMissingFields(t *testing.T) {
	r := New(DefaultCatalog())
	tool := r.Lookup("browser_click")
	err := tool.Validate(map[string]any{"selector": "#submit"})
	require.Error(t, err)

	gerr, ok := err.(*gwerr.Error)
	require.True(t, ok)
	assert.Equal(t, []string{"context_id"}, gerr.Context["missing_fields"])
}

func TestValidateReportsUnknownFields(t *testing.T) {
	r := New(DefaultCatalog())
	tool := r.Lookup("browser_navigate")
	err := tool.Validate(map[string]any{
		"context_id": "ctx-1",
		"url":        "https://example.com",
		"bogus":      "field",
	})
	require.Error(t, err)
}

func TestValidateRejectsWrongFieldType(t *testing.T) {
	r := New(DefaultCatalog())
	tool := r.Lookup("browser_screenshot")
	err := tool.Validate(map[string]any{
		"context_id": "ctx-1",
		"full_page":  "not-a-bool",
	})
	assert.Error(t, err)
}

func TestLicenseSubsurfaceToolsAreMarked(t *testing.T) {
	r := New(DefaultCatalog())
	for _, name := range []string{"get_license_status", "get_hardware_fingerprint", "add_license", "remove_license", "get_license_info"} {
		tool := r.Lookup(name)
		require.NotNil(t, tool, name)
		assert.True(t, tool.LicenseSubsurface, name)
	}
	assert.False(t, r.Lookup("browser_navigate").LicenseSubsurface)
}

func TestAllReturnsFullCatalog(t *testing.T) {
	r := New(DefaultCatalog())
	assert.Len(t, r.All(), len(DefaultCatalog()))
}
