// Package sentence turns a markdown reply into short plain-text chunks
// suitable for speech synthesis.
package sentence

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ellipsis marks text cut at the length cap.
const ellipsis = "..."

var (
	urlRegex        = regexp.MustCompile(`(?i)\b(?:https?|ftp)://\S+|\bwww\.\S+`)
	spaceRegex      = regexp.MustCompile(`\s+`)
	spacePunctRegex = regexp.MustCompile(`\s+([.,!?;:])`)
)

// Parser extracts speakable sentences from markdown content.
type Parser struct {
	maxChars      int
	chunkChars    int
	abbreviations map[string]bool
	titleAbbrevs  map[string]bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxChars caps the total speakable text. Zero disables the cap.
func WithMaxChars(n int) Option {
	return func(p *Parser) { p.maxChars = n }
}

// WithChunkChars splits sentences longer than n at word boundaries.
// Zero disables splitting.
func WithChunkChars(n int) Option {
	return func(p *Parser) { p.chunkChars = n }
}

// New creates a parser with default settings.
func New(opts ...Option) *Parser {
	p := &Parser{
		maxChars:      1000,
		chunkChars:    250,
		abbreviations: defaultAbbreviations(),
		titleAbbrevs:  defaultTitleAbbreviations(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Chunks strips markdown from text, normalizes it and returns it as a list
// of sentences, in order. Nothing speakable yields no chunks.
func (p *Parser) Chunks(markdown string) []string {
	plain := Normalize(p.Plain(markdown))
	if plain == "" {
		return nil
	}

	var chunks []string
	for _, s := range p.Split(plain) {
		chunks = append(chunks, splitLong(s, p.chunkChars)...)
	}
	return capTotal(chunks, p.maxChars)
}

// Plain extracts the readable text of markdown. Code blocks, HTML and
// images are dropped; links keep their text.
func (p *Parser) Plain(markdown string) string {
	reader := text.NewReader([]byte(markdown))
	doc := goldmark.New().Parser().Parse(reader)

	var buf strings.Builder
	p.walkNode(doc, reader.Source(), &buf)
	return buf.String()
}

func (p *Parser) walkNode(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.Image, *ast.AutoLink:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.TextBlock:
		p.walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	p.walkChildren(node, source, buf)
}

func (p *Parser) walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		p.walkNode(c, source, buf)
	}
}

// endSentence terminates a block so that it is read as its own sentence.
func endSentence(buf *strings.Builder) {
	s := strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	if s == "" {
		return
	}
	if r, _ := utf8.DecodeLastRuneInString(s); !isTerminal(r) && r != ':' {
		buf.WriteByte('.')
	}
	buf.WriteByte(' ')
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// unspeakable matches runes a synthesizer would read out literally or
// choke on: emoji and other symbols, control and private-use characters.
var unspeakable = runes.Predicate(func(r rune) bool {
	if unicode.IsSpace(r) {
		return false
	}
	return unicode.In(r, unicode.So, unicode.Sk, unicode.Cc, unicode.Co, unicode.Cs, unicode.Cf) ||
		r == '*' || r == '#' || r == '_' || r == '`' || r == '|' || r == '~'
})

// Normalize prepares plain text for synthesis: compatibility forms are
// folded, URLs and unspeakable symbols removed and whitespace collapsed.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKC, runes.Remove(unspeakable))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = urlRegex.ReplaceAllString(out, "")
	out = spaceRegex.ReplaceAllString(out, " ")
	out = spacePunctRegex.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out)
}

// Split splits plain text into sentences.
func (p *Parser) Split(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)

	rs := []rune(text)
	for i := 0; i < len(rs); i++ {
		current.WriteRune(rs[i])
		if p.isSentenceBoundary(rs, i) {
			if s := strings.TrimSpace(current.String()); s != "" && hasSpeech(s) {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" && hasSpeech(s) {
		sentences = append(sentences, s)
	}
	return sentences
}

// hasSpeech reports whether s has anything besides punctuation.
func hasSpeech(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func (p *Parser) isSentenceBoundary(rs []rune, pos int) bool {
	if pos >= len(rs)-1 {
		return true
	}

	current := rs[pos]
	// a closing quote or bracket right after a terminal ends the sentence
	closing := isCloser(current) && pos > 0 && isTerminal(rs[pos-1])
	if !isTerminal(current) && !closing {
		return false
	}
	if isTerminal(current) && isCloser(rs[pos+1]) {
		return false
	}
	if current == '.' && (isEllipsis(rs, pos) || isDecimal(rs, pos)) {
		return false
	}

	nextPos := pos + 1
	if !unicode.IsSpace(rs[nextPos]) {
		// "e.g." or "v1.2"
		return false
	}
	for nextPos < len(rs) && unicode.IsSpace(rs[nextPos]) {
		nextPos++
	}
	if nextPos >= len(rs) {
		return true
	}

	if current == '.' {
		word := wordBefore(rs, pos)
		if p.titleAbbrevs[word] {
			return false
		}
		if p.abbreviations[word] {
			return unicode.IsUpper(rs[nextPos])
		}
	}
	// a lowercase continuation is not a new sentence
	return !unicode.IsLower(rs[nextPos])
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == '”' || r == '’'
}

// Ellipses end a sentence only when followed by a capital, like any other
// terminal; isEllipsis reports the inner dots.
func isEllipsis(rs []rune, pos int) bool {
	return pos+1 < len(rs) && rs[pos+1] == '.'
}

func isDecimal(rs []rune, pos int) bool {
	return pos > 0 && unicode.IsDigit(rs[pos-1]) && pos+1 < len(rs) && unicode.IsDigit(rs[pos+1])
}

func wordBefore(rs []rune, pos int) string {
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(rs[start]) {
		start--
	}
	return strings.ToLower(strings.TrimLeft(string(rs[start+1:pos]), "(\"'"))
}

// splitLong breaks s into pieces of at most n runes at word boundaries.
// A single word longer than n is cut.
func splitLong(s string, n int) []string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return []string{s}
	}

	var (
		out     []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current, size = nil, 0
		}
	}
	for _, w := range strings.Fields(s) {
		wl := utf8.RuneCountInString(w)
		for wl > n {
			flush()
			rs := []rune(w)
			out = append(out, string(rs[:n]))
			w = string(rs[n:])
			wl -= n
		}
		extra := wl
		if size > 0 {
			extra++
		}
		if size+extra > n {
			flush()
			extra = wl
		}
		current = append(current, w)
		size += extra
	}
	flush()
	return out
}

// capTotal keeps whole chunks while their combined length fits within
// limit, cutting the first one that doesn't at a word boundary and marking
// the end with an ellipsis. The result, ellipsis included, never exceeds
// limit runes.
func capTotal(chunks []string, limit int) []string {
	if limit <= 0 {
		return chunks
	}
	total := 0
	for _, c := range chunks {
		total += utf8.RuneCountInString(c)
	}
	if total <= limit {
		return chunks
	}

	budget := limit - utf8.RuneCountInString(ellipsis)
	if budget <= 0 {
		rs := []rune(chunks[0])
		return []string{string(rs[:min(len(rs), limit)])}
	}

	var out []string
	used := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c)
		if used+n <= budget {
			out = append(out, c)
			used += n
			continue
		}
		if cut := truncateWords(c, budget-used); cut != "" {
			out = append(out, cut)
		}
		break
	}
	if len(out) == 0 {
		return []string{string([]rune(chunks[0])[:budget]) + ellipsis}
	}
	out[len(out)-1] += ellipsis
	return out
}

// truncateWords keeps the longest prefix of whole words within n runes.
func truncateWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	size := 0
	for _, w := range strings.Fields(s) {
		wl := utf8.RuneCountInString(w)
		if size > 0 {
			wl++
		}
		if size+wl > n {
			break
		}
		if size > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		size += wl
	}
	return strings.TrimRight(b.String(), ",;:-")
}

// defaultAbbreviations returns common English abbreviations.
func defaultAbbreviations() map[string]bool {
	return map[string]bool{
		"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
		"sr": true, "jr": true, "st": true,
		"etc": true, "vs": true, "e.g": true, "i.e": true, "approx": true,
		"inc": true, "ltd": true, "co": true, "corp": true, "no": true,
		"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
		"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
		"nov": true, "dec": true,
		"ft": true, "in": true, "mi": true, "km": true, "kg": true,
		"lb": true, "oz": true, "sec": true, "min": true, "hr": true,
	}
}

// defaultTitleAbbreviations returns abbreviations that precede a name and
// never end a sentence.
func defaultTitleAbbreviations() map[string]bool {
	return map[string]bool{
		"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
		"sr": true, "jr": true, "st": true,
	}
}
