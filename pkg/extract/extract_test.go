package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadDocumentPlainText(t *testing.T) {
	doc, err := ReadDocument("essay.txt", []byte("  My essay about compilers.  "))
	require.NoError(t, err)
	require.Equal(t, "My essay about compilers.", doc.Text)
	require.Equal(t, "text", doc.FileType)
}

func TestReadDocumentStripsHTML(t *testing.T) {
	doc, err := ReadDocument("page.html", []byte("<html><body><h1>Title</h1><script>evil()</script><p>Answer text</p></body></html>"))
	require.NoError(t, err)
	require.NotContains(t, doc.Text, "<")
	require.NotContains(t, doc.Text, "evil")
	require.Contains(t, doc.Text, "Answer text")
}

func TestReadDocumentRejectsBinary(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	_, err := ReadDocument("image.png", png)
	require.Error(t, err)
}

func TestFallbackQAPairs(t *testing.T) {
	text := "Name: Ada Lovelace\n" +
		"Q1: What is a goroutine?\n" +
		"A lightweight thread managed by the runtime.\n" +
		"Question 2. Define a channel\n" +
		"A typed conduit for communication.\n"

	pairs := FallbackQAPairs(text)
	require.Len(t, pairs, 2)
	require.Equal(t, "What is a goroutine?", pairs[0].Question)
	require.Contains(t, pairs[0].Answer, "lightweight thread")
	require.Equal(t, "Define a channel", pairs[1].Question)
}

func TestFallbackQAPairsNoStructure(t *testing.T) {
	require.Empty(t, FallbackQAPairs("This essay discusses sorting algorithms without any question markers."))
}

func TestStudentName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", StudentName("Name: Ada Lovelace\nQ1: ..."))
	require.Equal(t, "Grace Hopper", StudentName("Submitted by - Grace Hopper"))
	require.Empty(t, StudentName("no declared name here"))
}
