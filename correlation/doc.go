// Package correlation provides the synchronous request/response layer on
// top of the bus. An Exchange fills in correlation ids, registers a one-shot
// waiter before the envelope leaves the process, and blocks the caller until
// the correlated response arrives or a deadline passes.
//
// Backend rejections (error envelopes) come back as *protocol.Error so
// callers can inspect the Ditto error code and status; transport failures,
// timeouts and cancellations come back as ClassifiedError. The zero
// deadline is DefaultTimeout; envelopes carrying their own timeout header
// override it per request.
package correlation
