// Package server implements the relaychat core and the plumbing around it.
//
// A Hub owns the set of connected clients and applies events from a single
// queue. Each accepted connection, whether plain TCP or WebSocket, gets a
// Client worker that performs the name handshake and reports what it reads
// as Connected, TextReceived, and Disconnected events. Configuration,
// logging, the TCP listener, and the optional HTTP surface live in their
// own files.
package server
