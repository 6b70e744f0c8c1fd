// Package policies manages the access control policies guarding things.
//
// Policy commands carry no channel segment; they always travel over the
// twin connection, so the Client shares the twin exchange. Handle
// operations are synchronous and follow the same validate, send, decode
// shape as the thing handles.
package policies
