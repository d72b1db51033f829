// Package sealed is a development encryption capability.
//
// Values are sealed to the network's X25519 key with NaCl anonymous boxes.
// This is not homomorphic: a gateway can store and forward the ciphertexts
// but cannot aggregate them. It exists so the full submission path can run
// against a registry that treats ciphertexts as opaque.
//
// Each handle is blake3(contract || user || ciphertext). The input proof is
//
//	version (1 byte) || chain id (8 bytes, big endian) ||
//	for each value: length (2 bytes, big endian) || ciphertext
//
// ParseProof reverses that layout.
package sealed
