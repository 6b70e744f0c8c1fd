// Package live covers the peer-to-peer side of the protocol: traffic
// exchanged directly between connected clients without touching the
// persisted twin.
//
// Three interaction styles share the live channel. Commands are the same
// verbs as twin commands, but answered by whichever peer registered a
// handler for their kind:
//
//	client.HandleCommand(live.CommandRetrieveThing, func(cmd live.Command) (any, int, error) {
//		return currentState(cmd.ThingID), 0, nil
//	})
//
// Messages are free-form subjects routed to a thing's inbox or from its
// outbox, sent with SendMessage or RequestMessage and received through
// RegisterForMessages. Events are emitted with ThingHandle.EmitEvent and
// observed through the embedded events.Registrar.
//
// Command and message handlers run on the bus dispatch goroutine and must
// not block.
package live
