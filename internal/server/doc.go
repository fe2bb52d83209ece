// Package server implements the game-side half of the bridge: the WebSocket
// listener, the authentication gate, the per-connection message router, the
// connection registry and the broadcast/command dispatcher.
//
// The implementation is organized into specialized files for the registry,
// clients, routing, dispatch and lifecycle so each piece can be tested on its
// own.
package server
