package formatter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-station-timeline/internal/util"
)

func TestSummaryFormatterFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSummaryFormatter(testOptions(t)).Format(&buf, []ScopeView{testView(t), staleView()}))
	output := buf.String()

	wantInBody := []string{
		"Station Timeline Summary Report",
		"alpha (fresh):",
		"  Updated: 3 minutes ago",
		"  Entries: 3",
		"  Date Range: 2024-01-02 to 2024-01-03",
		"  Latest: Wed, Jan 3, 2024 09:30 (2 hours ago)",
		"beta (stale):",
		"  Error: upstream returned 503",
		"Total: 3 entries across 2 scopes",
	}
	for _, want := range wantInBody {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q\n%s", want, output)
		}
	}

	assert.Regexp(t, `incident\s+1`, output)
	assert.Regexp(t, `task\s+1`, output)
	assert.Regexp(t, `telemetry\s+1`, output)
	assert.Less(t, strings.Index(output, "incident"), strings.Index(output, "telemetry"), "ties sort by name")
}

func TestSummaryFormatterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSummaryFormatter(Options{}).Format(&buf, nil))
	assert.Contains(t, buf.String(), "No scopes to summarize")
}

func TestCountTypes(t *testing.T) {
	view := testView(t)
	counts := countTypes(view)
	require.Len(t, counts, 3)
	assert.Equal(t, "incident", counts[0].Type)
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", FormatTable, FormatJSON, FormatCSV, FormatSummary} {
		f, err := New(name, Options{})
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}

	_, err := New("xml", Options{})
	assert.ErrorContains(t, err, `unsupported output format "xml"`)
}

func TestTimeLabelFollowsProviderZone(t *testing.T) {
	opts := testOptions(t)
	tokyo, err := util.NewTimeProvider("Asia/Tokyo")
	require.NoError(t, err)
	opts.Provider = tokyo

	view := testView(t)
	assert.Equal(t, "18:30", opts.timeLabel(view.Groups[0].Entries[0]))

	var buf bytes.Buffer
	require.NoError(t, NewSummaryFormatter(opts).Format(&buf, []ScopeView{view}))
	assert.Contains(t, buf.String(), "  Latest: Wed, Jan 3, 2024 18:30")
}
