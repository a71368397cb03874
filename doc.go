// Package ort is a command-line OpenRouter client built on its own
// TLS 1.3 implementation.
//
// Layout:
//
//	cmd/ort          the CLI
//	pkg/crypto       SHA-256, HMAC, HKDF, AES-128, GCM, X25519
//	pkg/protocol     TLS wire types: records, handshake messages, alerts
//	pkg/tls13        record layer, key schedule, handshake, Conn
//	pkg/httpstream   HTTP/1.1 framing and SSE over the record stream
//	pkg/openrouter   chat-completions client
//	pkg/metrics      stats, tracing, logging
//
// The TLS client intentionally skips certificate verification: it offers
// confidentiality against passive eavesdroppers and integrity within a
// session, nothing more. See pkg/tls13 for the full trust statement.
package ort
