package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mvp-joe/kernel-memory/internal/memory"
	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/search"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

type putBody struct {
	Content  string            `json:"content"`
	Title    string            `json:"title,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	NodeID  string `json:"nodeId"`
	Deleted bool   `json:"deleted"`
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.opts.Version})
}

func (a *api) listNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.mem.Nodes(r.Context()))
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	if err := validate(a.schemas.search, body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req memory.SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.mem.Search(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) getContent(w http.ResponseWriter, r *http.Request) {
	rec, err := a.mem.Get(r.Context(), chi.URLParam(r, "node"), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) putContent(w http.ResponseWriter, r *http.Request) {
	body, ok := a.readBody(w, r)
	if !ok {
		return
	}
	if err := validate(a.schemas.put, body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var in putBody
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.mem.Put(r.Context(), chi.URLParam(r, "node"), &storage.Content{
		ID:       chi.URLParam(r, "id"),
		Content:  in.Content,
		Title:    in.Title,
		MimeType: in.MimeType,
		Tags:     in.Tags,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) deleteContent(w http.ResponseWriter, r *http.Request) {
	nodeID, id := chi.URLParam(r, "node"), chi.URLParam(r, "id")
	deleted, err := a.mem.Delete(r.Context(), nodeID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{ID: id, NodeID: nodeID, Deleted: deleted})
}

func (a *api) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
		} else {
			writeError(w, http.StatusBadRequest, err)
		}
		return nil, false
	}
	return body, true
}

// fail maps a service error to its status. Unexpected errors are logged
// and reported without detail.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.opts.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, errors.New("internal error"))
		return
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrUnknownNode), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, node.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, memory.ErrInvalidRequest), errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, memory.ErrNoTargetNodes):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNoWritableNode):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
