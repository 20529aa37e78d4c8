package peer

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// healthyWindow is how recently a peer must have been seen to count as healthy.
	healthyWindow = 5 * time.Minute
	// healthyGraceAttempts is the number of successes below which a recently
	// seen peer is presumed healthy regardless of its success rate. A newly
	// discovered peer gets the benefit of the doubt until proven otherwise.
	healthyGraceAttempts = 3
	// healthyMinRate is the success rate a peer must sustain once past the grace period.
	healthyMinRate = 0.5
)

// Address identifies a peer by host and port. Two peers are the same entity
// iff host and port match exactly.
type Address struct {
	Host string
	Port int
}

// String formats the address as host:port.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ParseAddress parses a peer address string of the form "host:port",
// optionally prefixed with an http:// or https:// scheme.
func ParseAddress(s string) (Address, error) {
	cleaned := strings.TrimPrefix(s, "http://")
	cleaned = strings.TrimPrefix(cleaned, "https://")

	idx := strings.LastIndex(cleaned, ":")
	if idx <= 0 || idx == len(cleaned)-1 {
		return Address{}, fmt.Errorf("invalid peer address %q: missing port", s)
	}

	host := cleaned[:idx]
	port, err := strconv.Atoi(cleaned[idx+1:])
	if err != nil {
		return Address{}, fmt.Errorf("invalid peer address %q: %w", s, err)
	}
	if port < 1 || port > 65535 {
		return Address{}, fmt.Errorf("invalid peer address %q: port out of range", s)
	}

	return Address{Host: host, Port: port}, nil
}

// Info holds what the node knows about a single peer.
type Info struct {
	Addr Address
	// NodeID is the peer's opaque identifier, learned from the DHT routing
	// table or via peer exchange. May be empty.
	NodeID string
	// LastSeen is the time of the last successful contact. The zero value
	// means the peer has never been verified (e.g. learned via gossip).
	LastSeen time.Time
	// Latency is the round-trip time of the most recent successful probe.
	Latency   time.Duration
	Failures  int
	Successes int
}

// SuccessRate returns successes / (successes + failures), or 0 if the peer
// has never been probed.
func (i *Info) SuccessRate() float64 {
	total := i.Successes + i.Failures
	if total == 0 {
		return 0
	}
	return float64(i.Successes) / float64(total)
}

// Healthy reports whether the peer was seen recently and is either reliable
// or still within the new-peer grace period.
func (i *Info) Healthy(now time.Time) bool {
	if i.LastSeen.IsZero() || now.Sub(i.LastSeen) >= healthyWindow {
		return false
	}
	return i.SuccessRate() > healthyMinRate || i.Successes < healthyGraceAttempts
}
