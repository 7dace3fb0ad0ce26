package healthz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleHealthz_NotReadyReturns503(t *testing.T) {
	s := NewServer(":0", prometheus.NewRegistry(), zap.NewNop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handleHealthz(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleHealthz_ReadyReturns200(t *testing.T) {
	s := NewServer(":0", prometheus.NewRegistry(), zap.NewNop())
	s.SetReady(true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handleHealthz(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewMetrics_CountersIncrementUnderTheirLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ReceivedInc(1)
	m.DiscardedInc("decode_error")
	m.ReplySentInc(2)
	m.PoolExhaustedInc("default")
	m.DialogWriteFailedInc()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
