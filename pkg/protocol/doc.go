// ABOUTME: Hub command API package
// ABOUTME: Defines wire types, transports and the error taxonomy
// Package protocol implements the client side of the hub command API.
//
// Commands are posted as {message_id, command, args} envelopes either over
// HTTP (one POST per call) or over a websocket correlated by message_id.
//
// Example:
//
//	client := protocol.NewHTTPClient(protocol.Config{
//	    Endpoint: protocol.Endpoint{BaseURL: "http://hub.local:8095", Token: token},
//	})
//	players, err := protocol.Execute[[]protocol.Player](ctx, client, protocol.CmdPlayersAll, nil)
package protocol
