package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lion7/radiusd/internal/config"
)

func TestNewRuntime_EnumeratesIPv4Hosts(t *testing.T) {
	r, err := NewRuntime("test", config.AddressPool{IPv4: []string{"192.0.2.0/30"}}, zap.NewNop())
	require.NoError(t, err)

	var got []string
	for {
		addr, ok := r.AllocateIPv4()
		if !ok {
			break
		}
		got = append(got, addr)
	}
	// /30 has 4 addresses, network (.0) and broadcast (.3) excluded.
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, got)
}

func TestNewRuntime_SlashThirtyOneUsesBothAddresses(t *testing.T) {
	r, err := NewRuntime("test", config.AddressPool{IPv4: []string{"192.0.2.4/31"}}, zap.NewNop())
	require.NoError(t, err)

	a, ok := r.AllocateIPv4()
	require.True(t, ok)
	b, ok := r.AllocateIPv4()
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"192.0.2.4", "192.0.2.5"}, []string{a, b})

	_, ok = r.AllocateIPv4()
	assert.False(t, ok)
}

func TestAllocateIPv4_ExhaustedReturnsFalse(t *testing.T) {
	r, err := NewRuntime("test", config.AddressPool{IPv4: []string{"192.0.2.0/30"}}, zap.NewNop())
	require.NoError(t, err)

	_, ok := r.AllocateIPv4()
	require.True(t, ok)
	_, ok = r.AllocateIPv4()
	require.True(t, ok)
	_, ok = r.AllocateIPv4()
	assert.False(t, ok)
}

func TestRestoreIPv4_ReturnsAddressToQueue(t *testing.T) {
	r, err := NewRuntime("test", config.AddressPool{IPv4: []string{"192.0.2.4/31"}}, zap.NewNop())
	require.NoError(t, err)

	addr, ok := r.AllocateIPv4()
	require.True(t, ok)
	assert.EqualValues(t, 1, r.InUseIPv4())

	r.RestoreIPv4(addr)
	assert.EqualValues(t, 0, r.InUseIPv4())

	// Restore pushes to the tail, so the other /31 address comes out first.
	other, ok := r.AllocateIPv4()
	require.True(t, ok)
	assert.NotEqual(t, addr, other)

	again, ok := r.AllocateIPv4()
	require.True(t, ok)
	assert.Equal(t, addr, again)
}

func TestNewRuntime_SplitsIPv6IntoSlash64(t *testing.T) {
	r, err := NewRuntime("test", config.AddressPool{IPv6: []string{"2001:db8::/62"}}, zap.NewNop())
	require.NoError(t, err)

	var got []string
	for {
		p, ok := r.AllocateIPv6()
		if !ok {
			break
		}
		got = append(got, p)
	}
	assert.Equal(t, []string{
		"2001:db8::/64",
		"2001:db8:0:1::/64",
		"2001:db8:0:2::/64",
		"2001:db8:0:3::/64",
	}, got)
}

func TestNewRuntime_KeepsIPv6PrefixNarrowerThanTarget(t *testing.T) {
	r, err := NewRuntime("test", config.AddressPool{IPv6: []string{"2001:db8::/65"}}, zap.NewNop())
	require.NoError(t, err)

	p, ok := r.AllocateIPv6()
	require.True(t, ok)
	assert.Equal(t, "2001:db8::/65", p)

	_, ok = r.AllocateIPv6()
	assert.False(t, ok)
}

func TestNewRuntime_SplitsDelegatedIntoSlash56(t *testing.T) {
	r, err := NewRuntime("test", config.AddressPool{IPv6Delegated: []string{"2001:db8::/55"}}, zap.NewNop())
	require.NoError(t, err)

	p1, ok := r.AllocateIPv6Delegated()
	require.True(t, ok)
	p2, ok := r.AllocateIPv6Delegated()
	require.True(t, ok)
	assert.Equal(t, []string{"2001:db8::/56", "2001:db8:0:100::/56"}, []string{p1, p2})
}

func TestNewRuntime_RejectsIPv4CIDRInIPv6Field(t *testing.T) {
	_, err := NewRuntime("test", config.AddressPool{IPv6: []string{"192.0.2.0/24"}}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRuntime_RejectsIPv6CIDRInIPv4Field(t *testing.T) {
	_, err := NewRuntime("test", config.AddressPool{IPv4: []string{"2001:db8::/64"}}, zap.NewNop())
	assert.Error(t, err)
}
