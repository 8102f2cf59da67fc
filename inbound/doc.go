// Package inbound is the entry point for remote activities. The
// gateway validates structure, enforces origin consistency, verifies
// HTTP signatures, deduplicates against the permanent inbox ledger,
// and dispatches note-created events to application logic.
//
// Any failed validation aborts with a client error; duplicates are
// accepted without reprocessing so peers can resend safely.
package inbound
