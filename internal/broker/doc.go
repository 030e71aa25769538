// Package broker carries storage operations across the privilege boundary.
//
// Embedded, untrusted contexts cannot open the durable store themselves.
// They connect to the daemon's unix socket and exchange newline-delimited
// JSON envelopes: requests are {id, type, payload}, responses are
// {id, result} or {id, error}. One request/response pair exists per storage
// action, plus a session:close side channel that is not a storage action.
//
// The privileged Handler is an exhaustive dispatch over the typed message
// set. Save actions are deliberately dumb upserts: the handler writes
// exactly the fields present in the payload and never merges with the stored
// row, so merge policy stays in the caller.
//
// The server keeps a connection open until every in-flight handler has
// resolved and its response has been written. Neither side imposes a
// timeout on a round-trip; a caller bounds a call with its context.
package broker
