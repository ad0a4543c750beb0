package handler

import (
	"context"
	"net/http"

	"shared-notes-server/internal/domain"
	"shared-notes-server/pkg/logger/slogx"
	"shared-notes-server/pkg/response"
)

type linkIssuer interface {
	Issue(ctx context.Context, title, content string) (*domain.ShareLinkResponse, error)
}

type ShareHandler struct {
	issuer linkIssuer
}

func NewShareHandler(issuer linkIssuer) *ShareHandler {
	return &ShareHandler{issuer: issuer}
}

// Share publishes the posted note and returns it with its capability URL.
func (h *ShareHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSharedNoteRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	link, err := h.issuer.Issue(r.Context(), req.Title, req.Content)
	if err != nil {
		slogx.Error(r.Context(), "failed to issue share link", slogx.Err(err))
		response.InternalError(w, "Failed to share note")
		return
	}

	response.Success(w, link)
}
