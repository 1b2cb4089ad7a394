package lib

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreviewText_CollectsVisibleText(t *testing.T) {
	body := `<html><head><style>h1 { color: red; }</style></head>
	<body><h1>Big headline</h1>
	<p>First   item</p>
	<p>Second item</p></body></html>`

	got := previewText(body, 150)

	assert.Equal(t, "Big headline First item Second item", got)
}

func TestPreviewText_TruncatesLongBodies(t *testing.T) {
	body := "<html><body><p>" + strings.Repeat("word ", 100) + "</p></body></html>"

	got := previewText(body, 20)

	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), 23)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	got := truncate("héllo wörld", 5)
	assert.Equal(t, "héllo...", got)

	assert.Equal(t, "short", truncate("short", 10))
}
