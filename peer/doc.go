// Package peer maintains the node's view of network membership.
//
// The central type is Registry, a mutex-guarded table of known peers keyed
// by (host, port). The registry is shared by the bootstrap, health-monitor
// and peer-exchange loops and persists itself to a JSON file between runs.
package peer
