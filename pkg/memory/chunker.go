package memory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// charsPerToken is the fixed token-to-character conversion ratio.
const charsPerToken = 4

// breakWindow is how far the generic chunker scans backward for a natural
// boundary before giving up and cutting at the raw offset.
const breakWindow = 200

// conversationWindow and conversationOverlap control conversation chunking:
// messages are grouped into windows of 4 with 1 message shared between
// consecutive windows.
const (
	conversationWindow  = 4
	conversationOverlap = 1
)

var (
	headingRe  = regexp.MustCompile(`(?m)^#{2,3}\s`)
	sentenceRe = regexp.MustCompile(`[.!?][\s]|[。！？]`)
	declRe     = regexp.MustCompile(`^(export\s+|pub\s+|public\s+|private\s+|static\s+|async\s+)*(func|function|class|interface|type|enum|struct|trait|impl|def|fn)\b`)
)

// Chunker splits raw text, markdown, source code and conversation transcripts
// into bounded overlapping segments. Sizes are expressed in tokens and
// converted to characters at a fixed ratio.
type Chunker struct {
	chunkSize int // tokens
	overlap   int // tokens
}

// NewChunker creates a chunker. Non-positive values fall back to defaults;
// an overlap >= the chunk size is clamped so the chunker always advances.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// ChunkText splits plain text on token-approximate boundaries, preferring
// paragraph breaks, sentence ends, line breaks and word boundaries near the
// cut point. Every returned segment is trimmed and non-empty.
func (c *Chunker) ChunkText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	size := c.chunkSize * charsPerToken
	overlap := c.overlap * charsPerToken

	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			if seg := strings.TrimSpace(text[start:]); seg != "" {
				chunks = append(chunks, seg)
			}
			break
		}

		end = runeAlign(text, start, findBreak(text, start, end))
		if seg := strings.TrimSpace(text[start:end]); seg != "" {
			chunks = append(chunks, seg)
		}

		// The next chunk must always advance by at least one rune.
		start = runeAlign(text, start, end-overlap)
	}

	return chunks
}

// findBreak scans backward from end (at most breakWindow characters, never
// before start) for the best natural boundary: paragraph break, sentence end,
// line break, word boundary. Returns end unchanged when none is found.
func findBreak(text string, start, end int) int {
	lo := end - breakWindow
	if lo < start+1 {
		lo = start + 1
	}
	window := text[lo:end]

	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return lo + idx + 2
	}
	if locs := sentenceRe.FindAllStringIndex(window, -1); len(locs) > 0 {
		return lo + locs[len(locs)-1][1]
	}
	if idx := strings.LastIndex(window, "\n"); idx >= 0 {
		return lo + idx + 1
	}
	if idx := strings.LastIndex(window, " "); idx >= 0 {
		return lo + idx + 1
	}
	return end
}

// runeAlign moves i back to the nearest rune boundary, never at or before
// start: a cut that would not advance snaps forward past the rune at start
// instead. Cuts therefore never split a multi-byte rune.
func runeAlign(text string, start, i int) int {
	if i > len(text) {
		i = len(text)
	}
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	if i <= start {
		_, n := utf8.DecodeRuneInString(text[start:])
		return start + n
	}
	return i
}

// ChunkMarkdown splits markdown on level-2/3 heading boundaries. Oversized
// sections are sub-chunked generically; documents without headings fall back
// to generic chunking entirely.
func (c *Chunker) ChunkMarkdown(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	bounds := headingRe.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return c.ChunkText(text)
	}

	var sections []string
	prev := 0
	for _, b := range bounds {
		if b[0] > prev {
			sections = append(sections, text[prev:b[0]])
		}
		prev = b[0]
	}
	sections = append(sections, text[prev:])

	return c.collectSections(sections)
}

// ChunkCode splits source code at top-level declaration boundaries using
// language-agnostic keyword matching. Oversized declarations are sub-chunked
// generically; files without recognizable declarations fall back to generic
// chunking.
func (c *Chunker) ChunkCode(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var bounds []int
	for i, line := range lines {
		// Only column-zero declarations delimit top-level segments.
		if line != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") && declRe.MatchString(line) {
			bounds = append(bounds, i)
		}
	}
	if len(bounds) == 0 {
		return c.ChunkText(text)
	}

	var sections []string
	prev := 0
	for _, b := range bounds {
		if b > prev {
			sections = append(sections, strings.Join(lines[prev:b], "\n"))
		}
		prev = b
	}
	sections = append(sections, strings.Join(lines[prev:], "\n"))

	return c.collectSections(sections)
}

// collectSections trims structural sections and recursively sub-chunks any
// section exceeding the configured chunk size.
func (c *Chunker) collectSections(sections []string) []string {
	size := c.chunkSize * charsPerToken

	var chunks []string
	for _, sec := range sections {
		sec = strings.TrimSpace(sec)
		if sec == "" {
			continue
		}
		if len(sec) > size {
			chunks = append(chunks, c.ChunkText(sec)...)
		} else {
			chunks = append(chunks, sec)
		}
	}
	return chunks
}

// AssistantSpeaker is the fixed marker used for self-authored messages.
const AssistantSpeaker = "assistant"

// ChunkConversation groups messages into overlapping windows and renders each
// window as one chunk, one message per line.
func (c *Chunker) ChunkConversation(messages []Message) []string {
	if len(messages) == 0 {
		return nil
	}

	step := conversationWindow - conversationOverlap
	var chunks []string
	for start := 0; start < len(messages); start += step {
		end := start + conversationWindow
		if end > len(messages) {
			end = len(messages)
		}

		var lines []string
		for _, msg := range messages[start:end] {
			lines = append(lines, renderMessage(msg))
		}
		if seg := strings.TrimSpace(strings.Join(lines, "\n")); seg != "" {
			chunks = append(chunks, seg)
		}

		if end == len(messages) {
			break
		}
	}
	return chunks
}

// renderMessage formats a message as "[speaker] (ISO timestamp): content".
func renderMessage(msg Message) string {
	speaker := msg.Speaker
	if msg.FromSelf {
		speaker = AssistantSpeaker
	}
	return fmt.Sprintf("[%s] (%s): %s", speaker, msg.Timestamp.UTC().Format(time.RFC3339), msg.Content)
}

// codeExtensions maps file extensions to code chunking.
var codeExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".rs": true, ".java": true, ".kt": true, ".rb": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cs": true,
	".swift": true, ".php": true, ".scala": true,
}

// ChunkForExtension dispatches on a file extension: markdown files use the
// heading strategy, recognized code files the declaration strategy, anything
// else the generic strategy.
func (c *Chunker) ChunkForExtension(ext, text string) []string {
	switch {
	case ext == ".md" || ext == ".markdown":
		return c.ChunkMarkdown(text)
	case codeExtensions[ext]:
		return c.ChunkCode(text)
	default:
		return c.ChunkText(text)
	}
}
