package peer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// retentionWindow bounds both persistence and pruning: entries not seen
	// within this window are dropped on save, and pruned from memory if
	// their success rate has also collapsed.
	retentionWindow = 24 * time.Hour
	// pruneMinRate is the success rate below which a stale peer is pruned.
	pruneMinRate = 0.1
)

// Registry is the shared table of known peers. All methods are safe for
// concurrent use; each read-modify-write of an entry happens under the lock.
type Registry struct {
	mu    sync.RWMutex
	peers map[Address]*Info
	path  string
	log   *logrus.Logger
}

// NewRegistry creates an empty registry that persists to the given file path.
func NewRegistry(path string, log *logrus.Logger) *Registry {
	return &Registry{
		peers: make(map[Address]*Info),
		path:  path,
		log:   log,
	}
}

// record is the on-disk shape of a registry entry. Timestamps are unix
// seconds so peer files written by older nodes remain readable.
type record struct {
	Host      string  `json:"host"`
	Port      int     `json:"port"`
	NodeID    string  `json:"node_id,omitempty"`
	LastSeen  float64 `json:"last_seen"`
	LatencyMS float64 `json:"latency_ms"`
	Failures  int     `json:"failures"`
	Successes int     `json:"successes"`
}

func toRecord(i *Info) record {
	r := record{
		Host:      i.Addr.Host,
		Port:      i.Addr.Port,
		NodeID:    i.NodeID,
		LatencyMS: float64(i.Latency) / float64(time.Millisecond),
		Failures:  i.Failures,
		Successes: i.Successes,
	}
	if !i.LastSeen.IsZero() {
		r.LastSeen = float64(i.LastSeen.UnixNano()) / float64(time.Second)
	}
	return r
}

func fromRecord(r record) *Info {
	i := &Info{
		Addr:      Address{Host: r.Host, Port: r.Port},
		NodeID:    r.NodeID,
		Latency:   time.Duration(r.LatencyMS * float64(time.Millisecond)),
		Failures:  r.Failures,
		Successes: r.Successes,
	}
	if r.LastSeen > 0 {
		i.LastSeen = time.Unix(0, int64(r.LastSeen*float64(time.Second)))
	}
	return i
}

// Load reads the persisted peer file. A missing file, a decode error or an
// I/O error all leave the registry empty; none of them is fatal.
func (r *Registry) Load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Info("No saved peers found, starting fresh")
		} else {
			r.log.WithError(err).Warn("Failed to read peer file")
		}
		return
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		r.log.WithError(err).Warn("Failed to decode peer file")
		return
	}

	r.mu.Lock()
	for _, rec := range records {
		info := fromRecord(rec)
		r.peers[info.Addr] = info
	}
	loaded := len(r.peers)
	r.mu.Unlock()

	r.log.WithField("peers", loaded).Info("Loaded peers from disk")
}

// Save persists entries seen within the retention window. Unverified and
// stale entries are simply absent from the file; there are no tombstones.
// Write failures are logged and leave the previous file untouched.
func (r *Registry) Save() {
	cutoff := time.Now().Add(-retentionWindow)

	r.mu.RLock()
	records := make([]record, 0, len(r.peers))
	for _, info := range r.peers {
		if !info.LastSeen.IsZero() && info.LastSeen.After(cutoff) {
			records = append(records, toRecord(info))
		}
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		r.log.WithError(err).Error("Failed to encode peer file")
		return
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		r.log.WithError(err).Error("Failed to create peer file directory")
		return
	}

	// Owner-only: the peer file reveals network topology.
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		r.log.WithError(err).Error("Failed to save peer file")
		return
	}

	r.log.WithField("peers", len(records)).Info("Saved peers to disk")
}

// Prune removes peers that have not been seen within the retention window
// and whose success rate has dropped below the prune threshold. Peers that
// have never been probed are kept; they have had no chance to prove themselves.
func (r *Registry) Prune() int {
	cutoff := time.Now().Add(-retentionWindow)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for addr, info := range r.peers {
		if info.Successes+info.Failures == 0 {
			continue
		}
		if info.LastSeen.Before(cutoff) && info.SuccessRate() < pruneMinRate {
			delete(r.peers, addr)
			removed++
			r.log.WithField("peer", addr.String()).Info("Pruned dead peer")
		}
	}
	return removed
}

// Len returns the number of known peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Get returns a copy of the entry for addr, if known.
func (r *Registry) Get(addr Address) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.peers[addr]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Snapshot returns copies of all known peers.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.peers))
	for _, info := range r.peers {
		out = append(out, *info)
	}
	return out
}

// HealthyPeers returns copies of all peers currently considered healthy.
func (r *Registry) HealthyPeers(now time.Time) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.peers))
	for _, info := range r.peers {
		if info.Healthy(now) {
			out = append(out, *info)
		}
	}
	return out
}

// Touch marks addr as seen now, inserting it if unknown. A non-empty nodeID
// refreshes the stored one; an empty nodeID never clears a known identifier.
func (r *Registry) Touch(addr Address, nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.peers[addr]
	if !ok {
		info = &Info{Addr: addr}
		r.peers[addr] = info
	}
	info.LastSeen = time.Now()
	if nodeID != "" {
		info.NodeID = nodeID
	}
}

// MergeExchanged inserts a peer learned via gossip. The entry starts
// unverified (zero LastSeen) so it must pass a health probe before being
// treated as healthy. Existing entries are left untouched so gossip can
// never regress verified state. Returns true if a new entry was created.
func (r *Registry) MergeExchanged(addr Address, nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[addr]; ok {
		return false
	}
	r.peers[addr] = &Info{Addr: addr, NodeID: nodeID}
	return true
}

// RecordSuccess notes a successful probe of addr.
func (r *Registry) RecordSuccess(addr Address, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.peers[addr]
	if !ok {
		info = &Info{Addr: addr}
		r.peers[addr] = info
	}
	info.LastSeen = time.Now()
	info.Latency = latency
	info.Successes++
}

// RecordFailure notes a failed probe of addr. Unknown addresses are ignored;
// a peer that was pruned mid-probe should not reappear through its failure.
func (r *Registry) RecordFailure(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.peers[addr]; ok {
		info.Failures++
	}
}

// Connected records an explicit, user-initiated connection to addr.
func (r *Registry) Connected(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.peers[addr]
	if !ok {
		r.peers[addr] = &Info{Addr: addr, LastSeen: time.Now()}
		return
	}
	info.LastSeen = time.Now()
	info.Successes++
}
