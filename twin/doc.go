// Package twin operates on the persisted state of things: the digital twin
// the backend keeps for each device.
//
// A Client is bound to the twin channel bus and exchange of its parent
// client. Thing returns a handle for one thing; all handle operations build
// a command envelope, send it through the correlation exchange and block
// until the response, the timeout or the context ends:
//
//	handle := client.Thing(model.MustParseNamespacedID("org.acme:sensor-1"))
//	thing, err := handle.Retrieve(ctx)
//
// Handles are cheap stateless values. They validate their arguments before
// anything is sent, so a malformed path or identifier fails without a
// round trip.
//
// The embedded events.Registrar delivers twin events, which the backend
// emits after persisting a change. Search returns the streaming search
// handle for the same channel.
package twin
