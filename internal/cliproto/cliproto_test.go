package cliproto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerSplitsDocuments(t *testing.T) {
	in := strings.NewReader("{\"a\": 1}\n---\n{\"b\": 2}\n---\n")
	sc := NewScanner(in)

	doc, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, string(doc))

	doc, ok, err = sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"b": 2}`, string(doc))

	_, ok, err = sc.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScannerMultilineDocument(t *testing.T) {
	in := strings.NewReader("{\n  \"a\": 1\n}\n---\n")
	sc := NewScanner(in)
	doc, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, string(doc))
}

func TestScannerFinalDocumentWithoutDelimiter(t *testing.T) {
	in := strings.NewReader(`{"a": 1}`)
	sc := NewScanner(in)
	doc, ok, err := sc.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, string(doc))
}

func TestWriterAppendsDelimiter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)
	require.NoError(t, w.Write(map[string]any{"ok": true}))
	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n---\n"))
	assert.NotContains(t, strings.TrimSuffix(out, "\n---\n"), "\n", "responses are single-line unless pretty")
}

func TestWriterPretty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	require.NoError(t, w.Write(map[string]any{"ok": true}))
	assert.Contains(t, buf.String(), "  \"ok\"")
}
