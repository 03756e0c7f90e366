// Package crypto holds the primitives the delivery service and its clients
// share: ed25519 signatures, x25519 sealed boxes, hashing, Ethereum wallet
// signatures and the service's own keyring.
//
// Keys and signatures travel base64-encoded (standard alphabet); wallet
// signatures travel as 0x-prefixed hex, the way wallets produce them.
package crypto
