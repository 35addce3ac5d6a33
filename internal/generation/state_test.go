package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to RequestState
		want     bool
	}{
		{StatePending, StateDispatched, true},
		{StatePending, StateSucceeded, true},
		{StatePending, StateFailed, true},
		{StatePending, StateRetrying, false},
		{StateDispatched, StateSucceeded, true},
		{StateDispatched, StateRetrying, true},
		{StateDispatched, StateFailed, true},
		{StateDispatched, StatePending, false},
		{StateRetrying, StateDispatched, true},
		{StateRetrying, StateFailed, true},
		{StateRetrying, StateSucceeded, false},
		{StateSucceeded, StateDispatched, false},
		{StateFailed, StateRetrying, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}

	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRetrying.Terminal())
}

func TestMIMETypeFor(t *testing.T) {
	t.Parallel()

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00")
	unknown := []byte{0x00, 0x01, 0x02}

	assert.Equal(t, "image/png", mimeTypeFor(AttachmentImage, png))
	assert.Equal(t, "image/gif", mimeTypeFor(AttachmentImage, gif))
	assert.Equal(t, "image/jpeg", mimeTypeFor(AttachmentImage, unknown))
	assert.Equal(t, "audio/mp3", mimeTypeFor(AttachmentAudio, unknown))
	assert.Equal(t, "audio/mp3", mimeTypeFor(AttachmentAudio, png), "a different family falls back to the declared type")
}

func TestParseBackend(t *testing.T) {
	t.Parallel()

	b, err := ParseBackend(" Vertex ")
	assert.NoError(t, err)
	assert.Equal(t, BackendVertex, b)

	b, err = ParseBackend("genai")
	assert.NoError(t, err)
	assert.Equal(t, BackendGeminiAPI, b)

	_, err = ParseBackend("bedrock")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAttachmentKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "audio", AttachmentAudio.String())
	assert.Equal(t, "image", AttachmentImage.String())
	assert.Equal(t, "AttachmentKind(9)", AttachmentKind(9).String())
	assert.Empty(t, AttachmentKind(9).DefaultMIMEType())
}
