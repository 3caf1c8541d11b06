package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_AggregatesComponentStatus(t *testing.T) {
	m := NewMonitor()
	m.Register("breaker", func(context.Context) Component {
		return Component{Status: StatusHealthy}
	})
	m.Register("caches", func(context.Context) Component {
		return Component{Status: StatusHealthy}
	})

	rep := m.Report(context.Background())
	assert.Equal(t, StatusHealthy, rep.Status)
	assert.Len(t, rep.Components, 2)
	assert.Equal(t, "breaker", rep.Components["breaker"].Name)
}

func TestMonitor_DegradedComponentDegradesSystem(t *testing.T) {
	m := NewMonitor()
	m.Register("breaker", func(context.Context) Component {
		return Component{Status: StatusDegraded, Message: "upstream circuit open"}
	})
	m.Register("caches", func(context.Context) Component {
		return Component{Status: StatusHealthy}
	})

	rep := m.Report(context.Background())
	assert.Equal(t, StatusDegraded, rep.Status)
}

func TestHandler_StatusCodes(t *testing.T) {
	t.Run("healthy answers 200", func(t *testing.T) {
		m := NewMonitor()
		m.Register("ok", func(context.Context) Component {
			return Component{Status: StatusHealthy}
		})

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		require.Equal(t, 200, rec.Code)
		var rep Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
		assert.Equal(t, StatusHealthy, rep.Status)
	})

	t.Run("degraded answers 503", func(t *testing.T) {
		m := NewMonitor()
		m.Register("bad", func(context.Context) Component {
			return Component{Status: StatusDegraded}
		})

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, 503, rec.Code)
	})
}
