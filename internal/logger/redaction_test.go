package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactorMasksSecrets(t *testing.T) {
	r := NewRedactor()

	cases := map[string]string{
		"key sk-abcdefghijklmnopqrstuv used":          "key [REDACTED] used",
		"google AIzaSyAbCdEfGhIjKlMnOpQrStUvWxYz0123": "google [REDACTED]",
		"Authorization: Bearer abc.def.ghi":           "Authorization: [REDACTED]",
		"GET /embed?key=secretvalue123":               "GET /embed[REDACTED]",
	}
	for in, want := range cases {
		assert.Equal(t, want, r.Redact(in))
	}
}

func TestRedactorLeavesPlainTextAlone(t *testing.T) {
	r := NewRedactor()
	in := "indexed 12 chunks from notes.md"
	assert.Equal(t, in, r.Redact(in))
}

func TestRedactorAddPattern(t *testing.T) {
	r := NewRedactor()
	require.NoError(t, r.AddPattern(`internal-[0-9]+`))
	assert.Equal(t, "id [REDACTED]", r.Redact("id internal-42"))

	assert.Error(t, r.AddPattern(`([`))
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	_, err := w.Write([]byte("token sk-abcdefghijklmnopqrstuv\n"))
	require.NoError(t, err)
	assert.Equal(t, "token [REDACTED]\n", buf.String())
}
