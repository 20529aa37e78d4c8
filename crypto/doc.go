// Package crypto provides the cryptographic collaborators of the node:
// content hashing, the symmetric Cipher used to protect payloads before they
// enter the DHT, and a persistent key store with versioned keys encrypted
// at rest.
package crypto
