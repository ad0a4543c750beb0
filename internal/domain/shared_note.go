package domain

import "errors"

var ErrNoteNotFound = errors.New("shared note not found")

// DefaultTitle is applied by Create when the caller sends no title.
const DefaultTitle = "Untitled shared note"

type SharedNote struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// NewerThan reports whether n carries a later version marker than marker.
func (n *SharedNote) NewerThan(marker Timestamp) bool {
	return n.UpdatedAt.After(marker)
}

func (n *SharedNote) Clone() *SharedNote {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

type CreateSharedNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateSharedNoteRequest is a full replace; both fields must be present,
// empty strings are allowed.
type UpdateSharedNoteRequest struct {
	Title   *string `json:"title" validate:"required"`
	Content *string `json:"content" validate:"required"`
}

type ShareLinkResponse struct {
	Note *SharedNote `json:"note"`
	URL  string      `json:"url"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}
