// Package share issues capability URLs for shared notes. Possession of the
// URL is the only thing that grants access to the note.
package share

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"shared-notes-server/internal/domain"

	"github.com/segmentio/ksuid"
)

// SharedPath is the path segment every capability URL is placed under.
const SharedPath = "/shared/"

var ErrInvalidLink = errors.New("invalid share link")

// NewID returns an opaque token combining a second-resolution timestamp with
// 128 random bits. Collisions are not checked.
func NewID() string {
	return ksuid.New().String()
}

type noteCreator interface {
	Create(ctx context.Context, title, content string) (*domain.SharedNote, error)
}

type Issuer struct {
	creator noteCreator
	base    *url.URL
}

func NewIssuer(creator noteCreator, publicBaseURL string) (*Issuer, error) {
	base, err := url.Parse(strings.TrimRight(publicBaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse public base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("public base url %q must be absolute", publicBaseURL)
	}

	return &Issuer{creator: creator, base: base}, nil
}

// Issue creates the shared note and returns it with its capability URL.
func (i *Issuer) Issue(ctx context.Context, title, content string) (*domain.ShareLinkResponse, error) {
	note, err := i.creator.Create(ctx, title, content)
	if err != nil {
		return nil, fmt.Errorf("issue share link: %w", err)
	}

	return &domain.ShareLinkResponse{
		Note: note,
		URL:  i.LinkFor(note.ID),
	}, nil
}

func (i *Issuer) LinkFor(id string) string {
	return i.base.JoinPath(SharedPath, url.PathEscape(id)).String()
}

// ParseLink extracts the note id from a capability URL. A bare id is
// accepted as is.
func ParseLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", ErrInvalidLink
	}
	if !strings.Contains(link, "/") {
		return link, nil
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	idx := strings.LastIndex(u.Path, SharedPath)
	if idx < 0 {
		return "", ErrInvalidLink
	}
	id := strings.Trim(u.Path[idx+len(SharedPath):], "/")
	if id == "" || strings.Contains(id, "/") {
		return "", ErrInvalidLink
	}

	return id, nil
}
