package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandFlags(t *testing.T) {
	tests := []struct {
		cmd      string
		flag     string
		defValue string
	}{
		{cmd: "watch", flag: "interval", defValue: "0s"},
		{cmd: "watch", flag: "store-events", defValue: "false"},
		{cmd: "serve", flag: "addr", defValue: ""},
		{cmd: "seed", flag: "count", defValue: "40"},
		{cmd: "seed", flag: "format", defValue: "jsonl"},
		{cmd: "seed", flag: "seed", defValue: "1"},
		{cmd: "seed", flag: "step", defValue: "37m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := cmd.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "flag %s should exist", tt.flag)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}
}

func TestSeedDefaultsAndFormats(t *testing.T) {
	store := t.TempDir()

	out, err := execute(t, "seed", "--dir", store, "--format", "json", "--count", "3")
	require.NoError(t, err)
	for _, scope := range defaultSeedScopes {
		path := filepath.Join(store, scope+"-timeline.json")
		assert.Contains(t, out, path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"entries"`)
	}
}

func TestSeedDeterministic(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()

	_, err := execute(t, "seed", "--dir", first, "-s", "alpha", "--seed", "42", "--count", "5")
	require.NoError(t, err)
	_, err = execute(t, "seed", "--dir", second, "-s", "alpha", "--seed", "42", "--count", "5")
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(first, "alpha-timeline.jsonl"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(second, "alpha-timeline.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, len(a), len(b))
}

func TestSeedRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "zero count", args: []string{"--count", "0"}, want: "--count must be positive"},
		{name: "negative step", args: []string{"--step", "-1m"}, want: "--step must be positive"},
		{name: "unknown format", args: []string{"--format", "xml"}, want: "unsupported fixture format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"seed", "--dir", t.TempDir(), "-s", "alpha"}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWatchRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := execute(t, "watch", "--dir", t.TempDir(), "-s", "alpha", "--interval", "-5s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--interval must be positive")
}
