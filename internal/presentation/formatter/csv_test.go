package formatter

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCSVFormatter(t *testing.T) {
	formatter := NewCSVFormatter(Options{})
	if formatter == nil {
		t.Fatal("NewCSVFormatter returned nil")
	}
}

func TestCSVFormatterFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVFormatter(testOptions(t)).Format(&buf, []ScopeView{testView(t), staleView()}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4, "header plus one row per entry")

	assert.Equal(t, csvHeaders, records[0])
	assert.Equal(t, []string{
		"alpha", "2024-01-03", "09:30", "1", "telemetry", "Sensor Alpha", "Sensor Alpha",
		`{ "temperature": 21.4 }`, "2024-01-03T09:30:00.000Z",
	}, records[1])
	assert.Equal(t, "Scheduled maintenance", records[2][7])
	assert.Equal(t, "Door, open", records[3][5], "commas survive quoting")
}

func TestCSVFormatterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVFormatter(Options{}).Format(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
