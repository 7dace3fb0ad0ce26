// Package pool implements allocatable-address pool runtime state:
// enumeration of allocatable IPv4 host addresses and IPv6 prefixes from
// CIDR configuration, with FIFO allocate/restore semantics. A bitset
// tracks which ordinal in a sequence is currently checked out.
package pool

import (
	"fmt"
	"math/big"
	"math/rand"
	"net"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	"github.com/lion7/radiusd/internal/config"
)

// Runtime is the mutable, in-process allocation state for a single named
// AddressPool. Allocation state is never persisted: a restart re-enumerates
// the full pool and loses track of what was checked out before the
// restart — an accepted limitation, not a bug.
type Runtime struct {
	mu sync.Mutex

	logger *zap.Logger

	ipv4      []string
	ipv6      []string
	ipv6Deleg []string

	// ipv4Index and checkedOut track which ordinal of the original IPv4
	// sequence is currently on loan, so InUseIPv4 can report pool
	// pressure without scanning the free queue.
	ipv4Index  map[string]uint
	checkedOut *bitset.BitSet
}

// NewRuntime builds a Runtime from an AddressPool's CIDR configuration.
func NewRuntime(name string, p config.AddressPool, logger *zap.Logger) (*Runtime, error) {
	r := &Runtime{logger: logger.Named("pool." + name)}

	for _, cidr := range p.IPv4 {
		addrs, err := enumerateIPv4Hosts(cidr)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		r.ipv4 = append(r.ipv4, addrs...)
	}
	for _, cidr := range p.IPv6 {
		prefixes, err := splitOrKeep(cidr, 64)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		r.ipv6 = append(r.ipv6, prefixes...)
	}
	for _, cidr := range p.IPv6Delegated {
		prefixes, err := splitOrKeep(cidr, 56)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", name, err)
		}
		r.ipv6Deleg = append(r.ipv6Deleg, prefixes...)
	}

	if p.Shuffle {
		rand.Shuffle(len(r.ipv4), func(i, j int) { r.ipv4[i], r.ipv4[j] = r.ipv4[j], r.ipv4[i] })
		rand.Shuffle(len(r.ipv6), func(i, j int) { r.ipv6[i], r.ipv6[j] = r.ipv6[j], r.ipv6[i] })
		rand.Shuffle(len(r.ipv6Deleg), func(i, j int) { r.ipv6Deleg[i], r.ipv6Deleg[j] = r.ipv6Deleg[j], r.ipv6Deleg[i] })
	}

	r.ipv4Index = make(map[string]uint, len(r.ipv4))
	for i, addr := range r.ipv4 {
		r.ipv4Index[addr] = uint(i)
	}
	r.checkedOut = bitset.New(uint(len(r.ipv4)))

	return r, nil
}

// AllocateIPv4 pops the head of the IPv4 host-address queue, or returns
// ("", false) when the pool is exhausted.
func (r *Runtime) AllocateIPv4() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ipv4) == 0 {
		return "", false
	}
	addr := r.ipv4[0]
	r.ipv4 = r.ipv4[1:]
	if ord, ok := r.ipv4Index[addr]; ok {
		r.checkedOut.Set(ord)
	}
	r.logger.Debug("allocated ipv4 address", zap.String("address", addr), zap.Int("remaining", len(r.ipv4)))
	return addr, true
}

// InUseIPv4 reports how many of the pool's original IPv4 host addresses
// are currently checked out (not sitting in the free queue). Exposed for
// the metrics/health surface; never consulted by allocation logic itself.
func (r *Runtime) InUseIPv4() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkedOut.Count()
}

// AllocateIPv6 pops the head of the /64-prefix queue.
func (r *Runtime) AllocateIPv6() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ipv6) == 0 {
		return "", false
	}
	p := r.ipv6[0]
	r.ipv6 = r.ipv6[1:]
	return p, true
}

// AllocateIPv6Delegated pops the head of the /56-prefix queue.
func (r *Runtime) AllocateIPv6Delegated() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ipv6Deleg) == 0 {
		return "", false
	}
	p := r.ipv6Deleg[0]
	r.ipv6Deleg = r.ipv6Deleg[1:]
	return p, true
}

// RestoreIPv4 pushes addr to the tail of the IPv4 queue. Restore accepts
// any well-formed address string, including ones never allocated from
// this pool; the caller is trusted.
func (r *Runtime) RestoreIPv4(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ipv4 = append(r.ipv4, addr)
	if ord, ok := r.ipv4Index[addr]; ok {
		r.checkedOut.Clear(ord)
	}
}

// RestoreIPv6 pushes a /64 prefix string to the tail of the IPv6 queue.
func (r *Runtime) RestoreIPv6(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ipv6 = append(r.ipv6, prefix)
}

// RestoreIPv6Delegated pushes a /56 prefix string to the tail of the
// delegated queue.
func (r *Runtime) RestoreIPv6Delegated(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ipv6Deleg = append(r.ipv6Deleg, prefix)
}

// enumerateIPv4Hosts returns the host addresses of network cidr, in
// ascending order. /31 and /32 networks have no distinguished
// network/broadcast address, so both endpoints are usable.
func enumerateIPv4Hosts(cidr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid IPv4 CIDR %q: %w", cidr, err)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%q is not an IPv4 CIDR", cidr)
	}
	ones, bits := ipnet.Mask.Size()
	base := ipToUint32(ipnet.IP.To4())
	size := uint32(1) << uint(bits-ones)

	var addrs []string
	if ones >= bits-1 {
		// /31 and /32: every address in the block is usable.
		for i := uint32(0); i < size; i++ {
			addrs = append(addrs, uint32ToIP(base+i).String())
		}
		return addrs, nil
	}
	// Exclude the network address (offset 0) and the broadcast address
	// (offset size-1).
	for i := uint32(1); i < size-1; i++ {
		addrs = append(addrs, uint32ToIP(base+i).String())
	}
	return addrs, nil
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

func uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// splitOrKeep returns the canonical "<addr>/<len>" form of the subnets of
// cidr at targetPrefixLen: if cidr's own prefix length is already at or
// shorter than the target, it is split into subnets of that length;
// otherwise cidr is kept as-is.
func splitOrKeep(cidr string, targetPrefixLen int) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid IPv6 CIDR %q: %w", cidr, err)
	}
	if ip.To4() != nil {
		return nil, fmt.Errorf("%q is not an IPv6 CIDR", cidr)
	}
	ones, bits := ipnet.Mask.Size()
	if ones > targetPrefixLen {
		return []string{ipnet.String()}, nil
	}

	count := new(big.Int).Lsh(big.NewInt(1), uint(targetPrefixLen-ones))
	base := new(big.Int).SetBytes(ipnet.IP.To16())
	step := new(big.Int).Lsh(big.NewInt(1), uint(bits-targetPrefixLen))

	var out []string
	cur := new(big.Int).Set(base)
	for i := new(big.Int); i.Cmp(count) < 0; i.Add(i, big.NewInt(1)) {
		addrBytes := make([]byte, 16)
		cur.FillBytes(addrBytes)
		out = append(out, fmt.Sprintf("%s/%d", net.IP(addrBytes).String(), targetPrefixLen))
		cur.Add(cur, step)
	}
	return out, nil
}
