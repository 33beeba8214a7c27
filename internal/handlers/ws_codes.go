// internal/handlers/ws_codes.go
package handlers

// Application close codes sent on the explorers websocket.
const (
	BadSubprotocolError  = 3000 // client did not negotiate the explorers subprotocol
	ConnectionSetupError = 3001 // the connection entity could not be created
	SlowConsumerError    = 3002 // the client fell too far behind the event stream
)
