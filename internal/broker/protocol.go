// ABOUTME: Wire protocol for the cross-context storage channel
// ABOUTME: One typed request/response pair per storage action plus an error variant

package broker

import (
	"encoding/json"

	"github.com/notedock/notedock/internal/store"
)

// Message types carried in the request envelope. The storage: prefix is the
// contract with embedded clients; session:close is a non-storage side
// channel asking the server to drop the client's session.
const (
	TypeGetNote          = "storage:getNote"
	TypeSaveNote         = "storage:saveNote"
	TypeGetLayout        = "storage:getLayout"
	TypeSaveLayout       = "storage:saveLayout"
	TypeGetButtonLayout  = "storage:getButtonLayout"
	TypeSaveButtonLayout = "storage:saveButtonLayout"
	TypeCloseSession     = "session:close"
)

// Request is the envelope a delegated context sends: a correlation ID, a
// message type, and a type-specific payload.
type Request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the envelope the privileged side replies with. Exactly one of
// Result or Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// SaveNotePayload carries the full note text for storage:saveNote.
type SaveNotePayload struct {
	Content string `json:"content"`
}

// NoteResult is the reply to storage:getNote. Content is the empty string
// when no note exists.
type NoteResult struct {
	Content string `json:"content"`
}

// SaveLayoutPayload carries a partial panel layout for storage:saveLayout.
// The broker upserts exactly these fields; it never merges with the stored
// row.
type SaveLayoutPayload struct {
	Layout store.PanelLayout `json:"layout"`
}

// SaveButtonLayoutPayload carries a partial button layout for
// storage:saveButtonLayout.
type SaveButtonLayoutPayload struct {
	Layout store.ButtonLayout `json:"layout"`
}

// Ack is the reply to save actions and session:close.
type Ack struct {
	OK bool `json:"ok"`
}

// okResponse builds a success response, encoding result into the envelope.
func okResponse(id string, result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return errResponse(id, "encoding result: "+err.Error())
	}
	return Response{ID: id, Result: raw}
}

// errResponse builds an error response. The delegated caller treats any
// error as a failure requiring its own fallback.
func errResponse(id, msg string) Response {
	return Response{ID: id, Error: msg}
}
