// Package relay implements the direct-messaging session relay core:
// the session registry (name -> connection), the message router, and the
// WebSocket connection gateway.
//
// All state is ephemeral. A client reserves a name and receives an opaque
// token; the token binds a live WebSocket connection; the router forwards
// messages to the recipient's connection or reports the recipient offline.
package relay
