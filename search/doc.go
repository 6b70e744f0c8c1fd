// Package search streams search results over the twin channel.
//
// The backend treats a search as a subscription: the client subscribes with
// a query, grants demand in pages, and receives "next" frames until the
// result set completes, fails or is cancelled. Handle.Stream wraps that
// handshake and returns a Stream consumed in the scanner idiom:
//
//	stream, err := client.Search().Stream(ctx, search.Query{
//		Filter: `eq(attributes/location,"kitchen")`,
//	})
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next(ctx) {
//		thing := stream.Thing()
//	}
//	if err := stream.Err(); err != nil { ... }
//
// The stream never buffers more than Query.InitialDemand pages: demand is
// granted upfront, then re-granted only as consumption frees buffer slots.
// A slow consumer therefore stalls the subscription on the backend instead
// of accumulating results in memory. A backend that sends beyond its
// granted demand fails the stream.
package search
