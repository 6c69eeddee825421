package figma

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// File is the metadata slice of a Figma file response.
type File struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	LastModified time.Time `json:"lastModified"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
}

// User identifies the author of a comment or version.
type User struct {
	Handle string `json:"handle"`
	ImgURL string `json:"img_url,omitempty"`
}

// ClientMeta carries the canvas position a comment is anchored to.
type ClientMeta struct {
	NodeID string   `json:"node_id,omitempty"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

// Comment is a single comment on a file. Comments are identified by ID;
// message edits do not change identity.
type Comment struct {
	ID         string      `json:"id"`
	Message    string      `json:"message"`
	User       User        `json:"user"`
	CreatedAt  time.Time   `json:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	ParentID   string      `json:"parent_id,omitempty"`
	ClientMeta *ClientMeta `json:"client_meta,omitempty"`
}

// Version is one entry of a file's version history.
type Version struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	User        User      `json:"user"`
}

// ParseFileKey extracts the file key from raw user input. It accepts a
// bare key or a figma.com file/design/proto URL; anything else comes
// back empty.
func ParseFileKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "/") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(parsed.Host, "www.")
	if host != "figma.com" {
		return ""
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "file", "design", "proto":
		return parts[1]
	}
	return ""
}

// APIError is a non-2xx response from the Figma API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("figma api request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("figma api request failed with status %d: %s", e.StatusCode, e.Message)
}
