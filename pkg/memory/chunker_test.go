package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextShortInput(t *testing.T) {
	c := NewChunker(512, 64)

	chunks := c.ChunkText("  a short note  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short note", chunks[0])
}

func TestChunkTextEmptyInput(t *testing.T) {
	c := NewChunker(512, 64)

	assert.Nil(t, c.ChunkText(""))
	assert.Nil(t, c.ChunkText("   \n\t  "))
}

func TestChunkTextSplitsLongInput(t *testing.T) {
	c := NewChunker(100, 10)

	var sb strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "Sentence number %d ends here. ", i)
	}
	chunks := c.ChunkText(sb.String())

	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk)
		assert.LessOrEqual(t, len(chunk), 100*charsPerToken)
	}
}

func TestChunkTextPrefersParagraphBreaks(t *testing.T) {
	c := NewChunker(25, 0)

	first := strings.Repeat("alpha ", 12)
	second := strings.Repeat("omega ", 30)
	chunks := c.ChunkText(first + "\n\n" + second)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.TrimSpace(first), chunks[0])
}

func TestChunkTextAlwaysTerminates(t *testing.T) {
	// Pathological input with no whitespace at all.
	c := NewChunker(10, 9)

	text := strings.Repeat("x", 2000)
	chunks := c.ChunkText(text)

	assert.NotEmpty(t, chunks)
	var total int
	for _, chunk := range chunks {
		total += len(chunk)
	}
	assert.GreaterOrEqual(t, total, len(text))
}

func TestChunkTextKeepsRunesIntact(t *testing.T) {
	// Unbroken CJK prose has no spaces or ASCII punctuation near the cut
	// points, so every cut must still land on a rune boundary.
	c := NewChunker(50, 5)

	text := strings.Repeat("记忆系统把对话分块并嵌入向量索引", 60)
	chunks := c.ChunkText(text)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8", i)
	}
}

func TestChunkTextBreaksOnCJKSentenceEnd(t *testing.T) {
	c := NewChunker(25, 0)

	first := strings.Repeat("甲", 30) + "。"
	second := strings.Repeat("乙", 80)
	chunks := c.ChunkText(first + second)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, first, chunks[0])
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8", i)
	}
}

func TestChunkerClampsOverlap(t *testing.T) {
	c := NewChunker(100, 100)
	assert.Equal(t, 50, c.overlap)

	c = NewChunker(0, -5)
	assert.Equal(t, 512, c.chunkSize)
	assert.Equal(t, 0, c.overlap)
}

func TestChunkMarkdownSplitsOnHeadings(t *testing.T) {
	c := NewChunker(512, 64)

	doc := `# Title

Intro paragraph.

## First Section

Body of the first section.

### Subsection

Nested content here.

## Second Section

Body of the second section.`

	chunks := c.ChunkMarkdown(doc)
	require.Len(t, chunks, 4)
	assert.True(t, strings.HasPrefix(chunks[0], "# Title"))
	assert.True(t, strings.HasPrefix(chunks[1], "## First Section"))
	assert.True(t, strings.HasPrefix(chunks[2], "### Subsection"))
	assert.True(t, strings.HasPrefix(chunks[3], "## Second Section"))
}

func TestChunkMarkdownWithoutHeadings(t *testing.T) {
	c := NewChunker(512, 64)

	chunks := c.ChunkMarkdown("just a paragraph without any headings")
	require.Len(t, chunks, 1)
}

func TestChunkCodeSplitsOnDeclarations(t *testing.T) {
	c := NewChunker(512, 64)

	src := `package thing

func First() int {
	return 1
}

func Second() int {
	// func inside a comment at indent does not split
	return 2
}

type Widget struct {
	Name string
}`

	chunks := c.ChunkCode(src)
	require.Len(t, chunks, 4)
	assert.True(t, strings.HasPrefix(chunks[1], "func First"))
	assert.True(t, strings.HasPrefix(chunks[2], "func Second"))
	assert.True(t, strings.HasPrefix(chunks[3], "type Widget"))
}

func TestChunkCodeIgnoresIndentedKeywords(t *testing.T) {
	c := NewChunker(512, 64)

	src := "func Outer() {\n\tfunc := 1\n\t_ = func\n}"
	chunks := c.ChunkCode(src)
	require.Len(t, chunks, 1)
}

func TestChunkConversationWindows(t *testing.T) {
	c := NewChunker(512, 64)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var messages []Message
	for i := 0; i < 7; i++ {
		messages = append(messages, Message{
			Speaker:   fmt.Sprintf("user%d", i),
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	chunks := c.ChunkConversation(messages)
	// Windows of 4 with 1 message overlap: [0..3], [3..6].
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "message 0")
	assert.Contains(t, chunks[0], "message 3")
	assert.NotContains(t, chunks[0], "message 4")
	assert.Contains(t, chunks[1], "message 3")
	assert.Contains(t, chunks[1], "message 6")
}

func TestChunkConversationMessageFormat(t *testing.T) {
	c := NewChunker(512, 64)

	ts := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	chunks := c.ChunkConversation([]Message{
		{Speaker: "alice", Content: "hello there", Timestamp: ts},
		{Speaker: "bot", Content: "hi!", Timestamp: ts.Add(time.Second), FromSelf: true},
	})

	require.Len(t, chunks, 1)
	lines := strings.Split(chunks[0], "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[alice] (2026-03-01T10:30:00Z): hello there", lines[0])
	assert.Equal(t, "[assistant] (2026-03-01T10:30:01Z): hi!", lines[1])
}

func TestChunkConversationEmpty(t *testing.T) {
	c := NewChunker(512, 64)
	assert.Nil(t, c.ChunkConversation(nil))
}

func TestChunkForExtension(t *testing.T) {
	c := NewChunker(512, 64)

	md := "## Heading\n\nbody"
	require.Len(t, c.ChunkForExtension(".md", md), 1)

	code := "func A() {}\n\nfunc B() {}"
	assert.Len(t, c.ChunkForExtension(".go", code), 2)

	assert.Len(t, c.ChunkForExtension(".txt", "plain text"), 1)
}
