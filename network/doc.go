// Package network implements the peer lifecycle and data-distribution layer
// of a datamesh node.
//
// A Network owns one peer registry and one DHT transport handle and runs
// three periodic loops against them: health checking (probe every known
// peer, then prune), peer exchange (publish and fetch healthy-peer lists
// through the DHT) and re-bootstrap (rejoin when the routing table runs
// thin). Foreground operations (content put/get and on-demand peer
// connect) share the same registry and transport.
//
// All background-loop errors are contained within their loop: they are
// logged and the loop continues on its next tick. Only operations invoked
// synchronously by a caller propagate errors.
package network
