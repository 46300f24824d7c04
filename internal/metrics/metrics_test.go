package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToolExecution(t *testing.T) {
	m := New()

	m.RecordToolExecution("web_search", "success", 150*time.Millisecond)
	m.RecordToolExecution("web_search", "success", 50*time.Millisecond)
	m.RecordToolExecution("run_js", "timeout", time.Second)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("web_search", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("run_js", "timeout")))
}

func TestRecordDispatchTurn(t *testing.T) {
	m := New()

	m.RecordDispatchTurn("done", 3)
	m.RecordDispatchTurn("aborted", 20)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.DispatchTurnsTotal.WithLabelValues("done")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.DispatchTurnsTotal.WithLabelValues("aborted")))
}

func TestGatherAll(t *testing.T) {
	m := New()
	m.CustomToolsLoaded.Set(4)
	m.MessagesReceivedTotal.Inc()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["custom_tools_loaded"])
	assert.True(t, names["transport_messages_received_total"])
}

func TestFormatPort(t *testing.T) {
	assert.Equal(t, ":9090", FormatPort(9090))
}
