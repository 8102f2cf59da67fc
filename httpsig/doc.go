// Package httpsig implements the draft HTTP message-signature scheme
// used between federation peers: RSA-SHA256 over a canonical string of
// selected request headers, with a SHA-256 body digest. Verification
// resolves the signing key through the document resolver; signing
// mutates an outbound request in place.
package httpsig
