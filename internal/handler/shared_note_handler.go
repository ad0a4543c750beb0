package handler

import (
	"context"
	"errors"
	"net/http"

	"shared-notes-server/internal/domain"
	"shared-notes-server/pkg/logger/slogx"
	"shared-notes-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type sharedNoteService interface {
	Create(ctx context.Context, title, content string) (*domain.SharedNote, error)
	Fetch(ctx context.Context, id string) (*domain.SharedNote, error)
	Update(ctx context.Context, id, title, content string) (*domain.SharedNote, error)
	Delete(ctx context.Context, id string) error
}

type SharedNoteHandler struct {
	service  sharedNoteService
	validate *validator.Validate
}

func NewSharedNoteHandler(service sharedNoteService) *SharedNoteHandler {
	return &SharedNoteHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *SharedNoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSharedNoteRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	note, err := h.service.Create(r.Context(), req.Title, req.Content)
	if err != nil {
		slogx.Error(r.Context(), "failed to create shared note", slogx.Err(err))
		response.InternalError(w, "Failed to create shared note")
		return
	}

	response.Success(w, note)
}

func (h *SharedNoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	response.NoStore(w)

	note, err := h.service.Fetch(r.Context(), noteID)
	if err != nil {
		h.writeError(w, r, "Failed to fetch shared note", err)
		return
	}

	response.Success(w, note)
}

func (h *SharedNoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	var req domain.UpdateSharedNoteRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, "Title and content are required", err.Error())
		return
	}

	note, err := h.service.Update(r.Context(), noteID, *req.Title, *req.Content)
	if err != nil {
		h.writeError(w, r, "Failed to update shared note", err)
		return
	}

	response.Success(w, note)
}

func (h *SharedNoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	if err := h.service.Delete(r.Context(), noteID); err != nil {
		slogx.Error(r.Context(), "failed to delete shared note", slogx.NoteID(noteID), slogx.Err(err))
		response.InternalError(w, "Failed to delete shared note")
		return
	}

	response.Success(w, domain.DeleteResponse{Success: true})
}

func (h *SharedNoteHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, domain.ErrNoteNotFound) {
		response.NotFound(w, "Shared note not found")
		return
	}

	slogx.Error(r.Context(), msg, slogx.NoteID(mux.Vars(r)["id"]), slogx.Err(err))
	response.InternalError(w, msg)
}
