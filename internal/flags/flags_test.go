package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{"defaults apply when not configured", New(nil), FlagSealLock, true},
		{"config overrides default", New(map[string]bool{FlagRegisterCache: false}), FlagRegisterCache, false},
		{"other flags keep defaults", New(map[string]bool{FlagRegisterCache: false}), FlagSealLock, true},
		{"unknown flag reads off", New(map[string]bool{"feature-a": true}), "unknown-flag", false},
		{"nil registry reads off", nil, FlagSealLock, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestRegistry_All(t *testing.T) {
	r := New(map[string]bool{FlagSealLock: false})
	all := r.All()
	require.Equal(t, map[string]bool{FlagRegisterCache: true, FlagSealLock: false}, all)

	all[FlagSealLock] = true
	require.False(t, r.Enabled(FlagSealLock), "All should return a copy")

	require.Empty(t, (*Registry)(nil).All())
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	require.Equal(t, []string{FlagRegisterCache, FlagSealLock}, []string{defs[0].Name, defs[1].Name})
	for _, d := range defs {
		require.True(t, Known(d.Name))
		require.NotEmpty(t, d.Description)
		require.Equal(t, d.Default, Defaults()[d.Name])
	}
	require.False(t, Known("session-resume"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil))
	require.NoError(t, Validate(map[string]bool{FlagSealLock: false}))
	require.EqualError(t, Validate(map[string]bool{FlagSealLock: true, "b-flag": true, "a-flag": true}),
		`unknown feature flag "a-flag"`)
}
