package network

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datamesh-network/datamesh/crypto"
	"github.com/datamesh-network/datamesh/transport"
)

// Record is the DHT value stored under a content hash. Records are
// immutable once written; a later put under the same hash overwrites the
// previous record, last write wins.
type Record struct {
	Hash      string  `json:"hash"`
	Data      []byte  `json:"data"`
	NodeID    string  `json:"node_id"`
	Timestamp float64 `json:"timestamp"`
}

// ContentStore moves encrypted payloads in and out of the DHT, keyed by the
// content hash of the plaintext.
type ContentStore struct {
	dht    transport.DHT
	cipher crypto.Cipher
	nodeID string
	ready  func() bool
	log    *logrus.Logger
}

// NewContentStore creates a content store. ready gates all operations on
// the network having joined.
func NewContentStore(dht transport.DHT, cipher crypto.Cipher, nodeID string, ready func() bool, log *logrus.Logger) *ContentStore {
	return &ContentStore{
		dht:    dht,
		cipher: cipher,
		nodeID: nodeID,
		ready:  ready,
		log:    log,
	}
}

// Put encrypts plaintext and stores it in the DHT under hash. The caller
// supplies hash as the hex digest of plaintext; it is not recomputed on the
// send path.
func (s *ContentStore) Put(ctx context.Context, hash string, plaintext []byte) error {
	if !s.ready() {
		return ErrNotStarted
	}

	encrypted, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt payload: %w", err)
	}

	payload, err := json.Marshal(Record{
		Hash:      hash,
		Data:      encrypted,
		NodeID:    s.nodeID,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	if err := s.dht.Set(ctx, hash, payload); err != nil {
		return fmt.Errorf("store %s: %w", shortHash(hash), err)
	}

	s.log.WithField("hash", shortHash(hash)).Info("Data stored in DHT")
	return nil
}

// Get retrieves and decrypts the payload stored under hash. Absence, decode
// failures and transport failures all surface as (nil, nil): callers treat
// retrieval as best-effort and may retry via another source. A plaintext
// whose digest does not match hash is rejected the same way; unverified
// data is never returned.
func (s *ContentStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if !s.ready() {
		return nil, ErrNotStarted
	}

	payload, found, err := s.dht.Get(ctx, hash)
	if err != nil {
		s.log.WithField("hash", shortHash(hash)).WithError(err).Error("Failed to retrieve data")
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		s.log.WithField("hash", shortHash(hash)).WithError(err).Error("Failed to parse DHT record")
		return nil, nil
	}
	if len(rec.Data) == 0 {
		return nil, nil
	}

	plaintext, err := s.cipher.Decrypt(rec.Data)
	if err != nil {
		s.log.WithField("hash", shortHash(hash)).WithError(err).Error("Failed to decrypt retrieved data")
		return nil, nil
	}

	if crypto.HashData(plaintext) != hash {
		s.log.WithField("hash", shortHash(hash)).Warn("Hash mismatch on retrieved data")
		return nil, nil
	}

	return plaintext, nil
}

func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16] + "..."
	}
	return hash
}
