// Package protocol implements the JSON envelope format spoken between
// twinstreams clients and the twin service.
//
// # Overview
//
// Every frame on the wire is an Envelope: a topic identifying the entity and
// interaction, a headers map, a pointer-style path into the entity, an
// optional JSON value, and, on responses, an HTTP-like status code.
//
//	{
//	  "topic": "org.acme/sensor-1/things/twin/commands/modify",
//	  "headers": {"correlation-id": "c7e2...", "response-required": true},
//	  "path": "/attributes/location",
//	  "value": {"lat": 52.5, "lon": 13.4}
//	}
//
// Topics read namespace/name/group[/channel]/criterion/action. The channel
// segment separates persisted twin traffic from live peer-to-peer traffic
// and is absent for policy topics. Search topics use "_" placeholders for
// the entity segments because a query spans many things.
//
// # Addresses
//
// Dispatch inside the SDK never matches on raw topics. Address() flattens an
// envelope to a hierarchical path such as
// "/things/org.acme:sensor-1/features/engine/properties/rpm", which the bus
// package matches against registered selectors. Search frames collapse to
// "/search/things/<subscriptionId>".
//
// # Building envelopes
//
// New marshals a command value and applies header options:
//
//	env, err := protocol.New(topic, "/attributes/location", loc,
//	    protocol.WithCondition(`gt(attributes/version,3)`),
//	    protocol.WithTimeout(5*time.Second))
//
// NewResponse answers a received command or message, carrying the
// correlation id over and setting the status code.
//
// Failure payloads decode into *Error, which implements the error interface
// and surfaces the backend's error code, message and status.
package protocol
