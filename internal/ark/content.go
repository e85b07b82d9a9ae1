package ark

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Static errors for content extraction.
var (
	// ErrVideoURLNotFound is returned when a succeeded task carries no video URL.
	ErrVideoURLNotFound = errors.New("ark: video URL not found")
	// ErrUnsupportedContent is returned when the content field is neither a list nor an object.
	ErrUnsupportedContent = errors.New("ark: unsupported content shape")
)

// ContentKind tags which payload variant a Content holds.
type ContentKind int

const (
	// KindAbsent means the payload had no content field (or null).
	KindAbsent ContentKind = iota
	// KindList means content was an array of items.
	KindList
	// KindObject means content was a single object.
	KindObject
)

func (k ContentKind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "absent"
	}
}

// Content is the decoded content field of a task payload. Exactly one of
// Items or Object is meaningful, selected by Kind.
type Content struct {
	Kind   ContentKind
	Items  []ContentItem
	Object ContentObject
}

// ContentItem is one element of a list-shaped content field.
type ContentItem struct {
	Type     string  `json:"type,omitempty"`
	Role     string  `json:"role,omitempty"`
	VideoURL flexURL `json:"video_url,omitempty"`
	URL      string  `json:"url,omitempty"`
	ImageURL flexURL `json:"image_url,omitempty"`
}

func (it ContentItem) isImage() bool {
	return it.Type == "image_url" || it.ImageURL != "" || it.Role != ""
}

// ContentObject is an object-shaped content field.
type ContentObject struct {
	VideoURL     flexURL `json:"video_url,omitempty"`
	URL          string  `json:"url,omitempty"`
	LastFrameURL flexURL `json:"last_frame_url,omitempty"`
}

// ParseContent decodes a raw content field into its variant.
func ParseContent(raw json.RawMessage) (Content, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Content{Kind: KindAbsent}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []ContentItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Content{}, fmt.Errorf("ark: decode content list: %w", err)
		}
		return Content{Kind: KindList, Items: items}, nil
	case '{':
		var obj ContentObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Content{}, fmt.Errorf("ark: decode content object: %w", err)
		}
		return Content{Kind: KindObject, Object: obj}, nil
	default:
		return Content{}, ErrUnsupportedContent
	}
}

// VideoURL extracts the generated video URL.
//
// List variant: the first item that is typed "video", carries video_url, or
// carries a top-level url without being an image item. Its video_url wins
// over url.
// Object variant: video_url, else url.
func (c Content) VideoURL() (string, error) {
	switch c.Kind {
	case KindList:
		for _, it := range c.Items {
			if it.VideoURL != "" {
				return string(it.VideoURL), nil
			}
			if it.URL != "" && (it.Type == "video" || !it.isImage()) {
				return it.URL, nil
			}
		}
	case KindObject:
		if c.Object.VideoURL != "" {
			return string(c.Object.VideoURL), nil
		}
		if c.Object.URL != "" {
			return c.Object.URL, nil
		}
	}
	return "", ErrVideoURLNotFound
}

// LastFrameURL extracts the final-frame image URL, if the provider returned one.
//
// List variant: the first item with role last_frame, or an untagged image_url
// item; image_url wins over url.
// Object variant: last_frame_url.
func (c Content) LastFrameURL() (string, bool) {
	switch c.Kind {
	case KindList:
		for _, it := range c.Items {
			if it.Role != RoleLastFrame && (it.Type != "image_url" || it.Role != "") {
				continue
			}
			if it.ImageURL != "" {
				return string(it.ImageURL), true
			}
			if it.URL != "" {
				return it.URL, true
			}
		}
	case KindObject:
		if c.Object.LastFrameURL != "" {
			return string(c.Object.LastFrameURL), true
		}
	}
	return "", false
}

// flexURL accepts either a bare string or an object of the form {"url": "..."}.
type flexURL string

// UnmarshalJSON implements json.Unmarshaler.
func (u *flexURL) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*u = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*u = flexURL(s)
		return nil
	}
	var ref imageRef
	if err := json.Unmarshal(trimmed, &ref); err != nil {
		return err
	}
	*u = flexURL(ref.URL)
	return nil
}
