package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "DEBUG", "console", false},
		{"bad level", "loud", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/roles/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, name := range []string{"coach", "cleaner"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/roles/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/roles/{name}", "404"))
	assert.Equal(t, float64(2), got, "path params collapse into one route label")
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics()
	m.RecordLogin("success")
	m.RecordLogin("invalid")
	m.RecordLogin("invalid")
	m.RecordAccessDenied("/dashboard/members")
	m.RecordRedirect("/sign-in")
	m.RecordSignupStep("business")
	m.RecordSessionCheck("anonymous")
	m.RecordAuditDropped()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Logins.WithLabelValues("invalid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AccessDenied.WithLabelValues("/dashboard/members")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditDropped))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLogin("success")
		m.RecordRedirect("/sign-in")
		m.RecordAuditDropped()
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordLogin("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `gym_logins_total{outcome="success"} 1`)
}
