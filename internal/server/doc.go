// Package server implements the chat server: a TCP accept loop, a
// per-connection read loop over the binary wire protocol, and a request
// dispatcher that executes every operation inside one global critical
// section against the mailbox store and the session registry.
//
// Serialization is total: at most one request mutates shared state at any
// instant, so no client ever observes a half-written mailbox. Socket writes,
// both responses and refresh_request pushes, happen after the critical
// section is released so a slow peer cannot stall the server.
package server
