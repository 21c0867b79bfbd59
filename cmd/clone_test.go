package cmd

import (
	"testing"

	"github.com/gaurav-prasanna/pageclone/config"
	"github.com/gaurav-prasanna/pageclone/core/reconstruct"
	"github.com/gaurav-prasanna/pageclone/core/render"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func resetCloneFlags(t *testing.T) {
	t.Helper()
	flagJSON, flagMarkdown, flagSplit, flagTimeout = false, false, false, 0
	t.Cleanup(func() {
		flagJSON, flagMarkdown, flagSplit, flagTimeout = false, false, false, 0
	})
}

func TestValidateCloneFlags(t *testing.T) {
	resetCloneFlags(t)
	assert.NoError(t, validateCloneFlags())

	flagSplit = true
	assert.NoError(t, validateCloneFlags())

	flagJSON = true
	assert.ErrorContains(t, validateCloneFlags(), "mutually exclusive")

	flagSplit, flagJSON, flagTimeout = false, false, -1
	assert.ErrorContains(t, validateCloneFlags(), "--timeout")
}

func TestSelectRenderer(t *testing.T) {
	resetCloneFlags(t)
	assert.IsType(t, &render.HTMLRenderer{}, selectRenderer())

	flagJSON = true
	assert.IsType(t, &render.JSONRenderer{}, selectRenderer())

	flagJSON, flagMarkdown = false, true
	assert.IsType(t, &render.MarkdownRenderer{}, selectRenderer())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["clone"])
	assert.True(t, names["serve"])
}

func TestNewReconstructor(t *testing.T) {
	cfg := config.Default()
	cfg.Model.APIKey = ""
	assert.Nil(t, newReconstructor(cfg, zerolog.Nop(), true), "no API key")

	cfg.Model.APIKey = "sk-test"
	assert.IsType(t, &reconstruct.ModelReconstructor{}, newReconstructor(cfg, zerolog.Nop(), true))
	assert.Nil(t, newReconstructor(cfg, zerolog.Nop(), false), "--no-ai")

	cfg.Model.Enabled = false
	assert.Nil(t, newReconstructor(cfg, zerolog.Nop(), true), "model disabled")
}
