// ABOUTME: Privileged-side request handler for the storage broker
// ABOUTME: The only path through which delegated contexts reach the durable store

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/notedock/notedock/internal/store"
)

// Handler executes storage requests against the durable store on behalf of
// delegated contexts. It is a dumb upsert proxy: save actions write exactly
// the fields present in the payload, and merging is the caller's concern.
type Handler struct {
	store  store.Store
	logger *slog.Logger
}

// NewHandler creates a Handler over the given store.
func NewHandler(s store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger.With("component", "broker"),
	}
}

// Handle dispatches one request and always produces a response: any failure
// while handling becomes an error response, never a dropped message.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	resp := h.dispatch(ctx, req)
	if resp.Error != "" {
		h.logger.Warn("request failed", "type", req.Type, "id", req.ID, "error", resp.Error)
	} else {
		h.logger.Debug("request handled", "type", req.Type, "id", req.ID)
	}
	return resp
}

func (h *Handler) dispatch(ctx context.Context, req Request) Response {
	switch req.Type {
	case TypeGetNote:
		note, err := h.store.GetNote(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return okResponse(req.ID, NoteResult{Content: ""})
		}
		if err != nil {
			return errResponse(req.ID, err.Error())
		}
		return okResponse(req.ID, NoteResult{Content: note.Content})

	case TypeSaveNote:
		var p SaveNotePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, "decoding payload: "+err.Error())
		}
		if err := h.store.PutNote(ctx, p.Content); err != nil {
			return errResponse(req.ID, err.Error())
		}
		return okResponse(req.ID, Ack{OK: true})

	case TypeGetLayout:
		layout, err := h.store.GetPanelLayout(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return okResponse(req.ID, store.PanelLayout{})
		}
		if err != nil {
			return errResponse(req.ID, err.Error())
		}
		return okResponse(req.ID, layout)

	case TypeSaveLayout:
		var p SaveLayoutPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, "decoding payload: "+err.Error())
		}
		if err := h.store.PutPanelLayout(ctx, &p.Layout); err != nil {
			return errResponse(req.ID, err.Error())
		}
		return okResponse(req.ID, Ack{OK: true})

	case TypeGetButtonLayout:
		layout, err := h.store.GetButtonLayout(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return okResponse(req.ID, store.ButtonLayout{})
		}
		if err != nil {
			return errResponse(req.ID, err.Error())
		}
		return okResponse(req.ID, layout)

	case TypeSaveButtonLayout:
		var p SaveButtonLayoutPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errResponse(req.ID, "decoding payload: "+err.Error())
		}
		if err := h.store.PutButtonLayout(ctx, &p.Layout); err != nil {
			return errResponse(req.ID, err.Error())
		}
		return okResponse(req.ID, Ack{OK: true})

	case TypeCloseSession:
		// Not a storage action. The server closes the connection after
		// this response is written.
		return okResponse(req.ID, Ack{OK: true})

	default:
		return errResponse(req.ID, "unknown message type: "+req.Type)
	}
}
