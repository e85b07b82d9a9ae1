package ark

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind ContentKind
	}{
		{"missing", ``, KindAbsent},
		{"null", `null`, KindAbsent},
		{"list", `[{"type":"video","video_url":"a"}]`, KindList},
		{"object", `{"video_url":"a"}`, KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseContent(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, c.Kind)
		})
	}
}

func TestParseContent_Unsupported(t *testing.T) {
	_, err := ParseContent(json.RawMessage(`"just a string"`))
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestContent_VideoURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"object video_url", `{"video_url":"v1","url":"u1"}`, "v1", false},
		{"object url fallback", `{"url":"u1"}`, "u1", false},
		{"object nested video_url", `{"video_url":{"url":"nested"}}`, "nested", false},
		{"list first item", `[{"video_url":"v1"},{"video_url":"v2"}]`, "v1", false},
		{"list typed video with url", `[{"type":"video","url":"u1"}]`, "u1", false},
		{"list skips image items", `[{"type":"image_url","url":"img","role":"last_frame"},{"url":"vid"}]`, "vid", false},
		{"list untyped url", `[{"url":"u1"}]`, "u1", false},
		{"list video_url wins over url", `[{"video_url":"v1","url":"u1"}]`, "v1", false},
		{"list with only images", `[{"type":"image_url","image_url":{"url":"img"}}]`, "", true},
		{"empty object", `{}`, "", true},
		{"absent", `null`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseContent(json.RawMessage(tt.raw))
			require.NoError(t, err)

			got, err := c.VideoURL()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrVideoURLNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContent_LastFrameURL(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"object", `{"video_url":"v","last_frame_url":"f"}`, "f", true},
		{"object without frame", `{"video_url":"v"}`, "", false},
		{"list role last_frame", `[{"video_url":"v"},{"type":"image_url","role":"last_frame","image_url":{"url":"f"}}]`, "f", true},
		{"list untagged image", `[{"video_url":"v"},{"type":"image_url","image_url":{"url":"f"}}]`, "f", true},
		{"list role last_frame plain url", `[{"role":"last_frame","url":"f"}]`, "f", true},
		{"list ignores reference images", `[{"type":"image_url","role":"reference_image","image_url":{"url":"r"}}]`, "", false},
		{"list without images", `[{"video_url":"v"}]`, "", false},
		{"absent", ``, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseContent(json.RawMessage(tt.raw))
			require.NoError(t, err)

			got, ok := c.LastFrameURL()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTaskStatus_NormalizesStatus(t *testing.T) {
	status, err := ParseTaskStatus([]byte(`{"id":"t","status":"Running"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status.Status)
	assert.False(t, status.Status.IsTerminal())
	assert.Equal(t, KindAbsent, status.Content.Kind)
}
