package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func decode(t *testing.T, message string, opts *decodeOptions) string {
	t.Helper()
	var out bytes.Buffer
	path := writeFile(t, "message.json", message)
	require.NoError(t, runDecode(context.Background(), &out, path, &rootOptions{logLevel: "error"}, opts))
	return out.String()
}

func TestDecode_RequestOnly(t *testing.T) {
	out := decode(t, `{"PitStrategyRequest": {"FuelToAddL": 20, "TireSet": null, "FrontTires": null, "RearTires": null}}`, &decodeOptions{})

	assert.Contains(t, out, `"FuelToAddL": 20`)
	assert.Contains(t, out, "fields: [fuel]")
	assert.NotContains(t, out, "actions")
}

func TestDecode_DryRunAgainstMenu(t *testing.T) {
	menu := writeFile(t, "menu.json", `{"FuelToAddL": 46, "TireSet": 1}`)

	out := decode(t, `{"PitStrategyRequest": {"FuelToAddL": 50, "TireSet": 2, "FrontTires": null, "RearTires": null}}`,
		&decodeOptions{game: "ACC", menuPath: menu, timeout: time.Second})

	assert.Contains(t, out, "game: ACC (registered: true)")
	assert.Contains(t, out, "actions (12): [OpenMenu Down Down Right Right Right Right OpenMenu Down Down Down Right]")
	assert.Contains(t, out, `"FuelToAddL":50`)
	assert.Contains(t, out, `"TireSet":2`)
	assert.Contains(t, out, "result: applied")
}

func TestDecode_UnsupportedGame(t *testing.T) {
	out := decode(t, `{"PitStrategyRequest": {"FuelToAddL": 50, "TireSet": null, "FrontTires": null, "RearTires": null}}`,
		&decodeOptions{game: "rFactor2", timeout: time.Second})

	assert.Contains(t, out, "game: rFactor2 (registered: false)")
	assert.Contains(t, out, "actions (0): []")
	assert.Contains(t, out, "result: this game does not support setting pit strategies")
}

func TestDecode_RejectsMalformedMessage(t *testing.T) {
	var out bytes.Buffer
	path := writeFile(t, "message.json", `{"hello": "world"}`)
	err := runDecode(context.Background(), &out, path, &rootOptions{}, &decodeOptions{})
	assert.Error(t, err)
}
