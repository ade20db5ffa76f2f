package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/robinavatar/internal/avatar3d"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestClassifyCommand(t *testing.T) {
	out := execute(t, "classify", "Wow,", "amazing!")
	assert.Equal(t, "expression: surprised\nmouth:      .O...A.A.I...\n", out)
}

func TestClassifyNeutral(t *testing.T) {
	out := execute(t, "classify", "ok")
	assert.Contains(t, out, "expression: neutral\n")
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "--config-dir", dir, "config", "validate")
	assert.Contains(t, out, "configuration is valid")
	configDir = ""
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	printReport(&out, avatar3d.BindingReport{
		Rig:        "robin",
		FaceParts:  []string{"Face"},
		Shapes:     map[string]bool{"joy": true, "sorrow": false},
		HairJoints: 3,
		Head:       true,
		Disabled:   []string{"shape:sorrow", "blink", "ears", "eyes"},
	})

	s := out.String()
	assert.Contains(t, s, "Rig: robin\n")
	assert.Contains(t, s, "  face parts  ✓ Face\n")
	assert.Contains(t, s, "  joy         ✓\n")
	assert.Contains(t, s, "  sorrow      ✗\n")
	assert.Contains(t, s, "  hair        ✓ 3 joints\n")
	assert.Contains(t, s, "Disabled: shape:sorrow, blink, ears, eyes\n")
}
