package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"noteszone/internal/note/model"
	"noteszone/internal/note/service"
	"noteszone/middleware"
	"noteszone/pkg/response"

	"github.com/gorilla/mux"
)

type NoteHandler struct {
	Service *service.NoteService
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{Service: service}
}

// decodeBody decodes r's JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *NoteHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Service.ListOwned(r.Context(), middleware.GetUserID(r))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Success(w, notes)
}

func (h *NoteHandler) ListShared(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Service.ListShared(r.Context(), middleware.GetUserID(r))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Success(w, notes)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateNoteRequest
	if err := decodeBody(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	note, err := h.Service.Create(r.Context(), middleware.GetUserID(r), req)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Created(w, note)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Get(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Success(w, view)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.Patch
	if err := decodeBody(r, &patch); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	note, err := h.Service.Update(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r), patch)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r)); err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Success(w, response.Message{Message: "Deleted"})
}

func (h *NoteHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req model.ShareRequest
	// A malformed body is reported by the service's validation message.
	if err := decodeBody(r, &req); err != nil {
		req = model.ShareRequest{}
	}

	note, err := h.Service.Share(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r), req)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Success(w, note)
}

func (h *NoteHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	var req model.UnshareRequest
	if err := decodeBody(r, &req); err != nil {
		req = model.UnshareRequest{}
	}

	note, err := h.Service.Unshare(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r), req)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Success(w, note)
}
