package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeletableID_RoundTrip(t *testing.T) {
	id := EncodeDeletableID("video", "biogy/posts/123-clip")

	kind, publicID := DecodeDeletableID(id)
	assert.Equal(t, "video", kind)
	assert.Equal(t, "biogy/posts/123-clip", publicID)
}

func TestDecodeDeletableID_BareID(t *testing.T) {
	kind, publicID := DecodeDeletableID("biogy/posts/plain")
	assert.Equal(t, "image", kind)
	assert.Equal(t, "biogy/posts/plain", publicID)
}
