package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lion7/radiusd/internal/config"
	"github.com/lion7/radiusd/internal/pool"
	"github.com/lion7/radiusd/internal/request"
)

type fakePacket struct {
	code  int
	id    int
	attrs map[string][]string
}

func (p fakePacket) Code() int { return p.code }
func (p fakePacket) ID() int   { return p.id }
func (p fakePacket) Names() []string {
	names := make([]string, 0, len(p.attrs))
	for n := range p.attrs {
		names = append(names, n)
	}
	return names
}
func (p fakePacket) Values(name string) []string { return p.attrs[name] }

type fakeMetrics struct {
	poolExhausted     []string
	dialogWriteFailed int
}

func (f *fakeMetrics) PoolExhaustedInc(pool string) { f.poolExhausted = append(f.poolExhausted, pool) }
func (f *fakeMetrics) DialogWriteFailedInc()        { f.dialogWriteFailed++ }

func baseConfig() *config.Config {
	return &config.Config{
		AddressPools: map[string]config.AddressPool{
			"default": {IPv4: []string{"192.0.2.0/31"}},
		},
		PoolMatchRules: []config.RuleGroup{{Target: "default"}},
		ReplyMatchRules: config.ReplyMatchRules{
			Auth: []config.RuleGroup{{Target: "accept"}},
			Acct: []config.RuleGroup{{Target: "ack"}},
		},
		ReplyDefinitions: config.ReplyDefinitions{
			Auth: map[string]config.AuthReply{
				"accept": {Code: 2, Attributes: attrMap(map[string]any{"Framed-IP-Address": "-> fromPool"})},
			},
			Acct: map[string]config.AcctReply{
				"ack": {Code: 5, Attributes: attrMap(map[string]any{"Acct-Status-Type": "ok"})},
			},
		},
	}
}

func attrMap(values map[string]any) config.AttrMap {
	m := request.NewOrderedMap()
	for k, v := range values {
		m.Set(k, v)
	}
	return config.AttrMap{OrderedMap: m}
}

func newBackend(t *testing.T, cfg *config.Config, metrics Metrics) *Backend {
	t.Helper()
	pools := make(map[string]*pool.Runtime)
	for name, p := range cfg.AddressPools {
		runtime, err := pool.NewRuntime(name, p, zap.NewNop())
		require.NoError(t, err)
		pools[name] = runtime
	}
	be, err := New(cfg, pools, nil, metrics, zap.NewNop())
	require.NoError(t, err)
	return be
}

func TestHandleRequest_AccessRequestAllocatesFromThePool(t *testing.T) {
	be := newBackend(t, baseConfig(), nil)

	req := fakePacket{code: 1, id: 1}
	result := be.HandleRequest(context.Background(), req, "10.0.0.1", 1812)

	require.NotNil(t, result.ReplyCode)
	assert.EqualValues(t, 2, *result.ReplyCode)
	v, ok := result.ReplyAttributes.Get("Framed-IP-Address")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.0", v)
}

func TestHandleRequest_AccountingRequestReturnsTheAcctTemplate(t *testing.T) {
	be := newBackend(t, baseConfig(), nil)

	req := fakePacket{code: 4, id: 1}
	result := be.HandleRequest(context.Background(), req, "10.0.0.1", 1813)

	require.NotNil(t, result.ReplyCode)
	assert.EqualValues(t, 5, *result.ReplyCode)
	v, ok := result.ReplyAttributes.Get("Acct-Status-Type")
	require.True(t, ok)
	assert.Equal(t, "ok", v)
}

func TestHandleRequest_PoolExhaustionRejectsAndRecordsMetric(t *testing.T) {
	cfg := baseConfig()
	metrics := &fakeMetrics{}
	be := newBackend(t, cfg, metrics)

	req := fakePacket{code: 1, id: 1}
	first := be.HandleRequest(context.Background(), req, "10.0.0.1", 1812)
	require.EqualValues(t, 2, *first.ReplyCode)
	second := be.HandleRequest(context.Background(), req, "10.0.0.1", 1812)
	require.EqualValues(t, 2, *second.ReplyCode)

	third := be.HandleRequest(context.Background(), req, "10.0.0.1", 1812)
	require.NotNil(t, third.ReplyCode)
	assert.EqualValues(t, 3, *third.ReplyCode)
	msg, ok := third.ReplyAttributes.Get("Reply-Message")
	require.True(t, ok)
	assert.Equal(t, "IP Address in pool is exhausted", msg)
	assert.Equal(t, []string{"default"}, metrics.poolExhausted)
}

func TestHandleRequest_NoMatchingReplyTemplateProducesEmptyResult(t *testing.T) {
	cfg := baseConfig()
	cfg.ReplyMatchRules.Auth = []config.RuleGroup{{Target: "missing"}}
	be := newBackend(t, cfg, nil)

	req := fakePacket{code: 1, id: 1}
	result := be.HandleRequest(context.Background(), req, "10.0.0.1", 1812)

	assert.Nil(t, result.ReplyCode)
	assert.Nil(t, result.ReplyAttributes)
}

func TestHandleRequest_UnknownPacketCodeProducesEmptyResult(t *testing.T) {
	be := newBackend(t, baseConfig(), nil)

	req := fakePacket{code: 43, id: 1}
	result := be.HandleRequest(context.Background(), req, "10.0.0.1", 3799)

	assert.Nil(t, result.ReplyCode)
	assert.Nil(t, result.ReplyAttributes)
}
