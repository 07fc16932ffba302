// Package lexer tokenizes template source into a flat stream of typed
// tokens. The stream is produced lazily: tokens are lexed as the consumer
// pulls them, so a parser can stop at the first error without the lexer
// scanning the rest of the source.
package lexer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	qerrors "github.com/conneroisu/quill/internal/errors"
)

const (
	leftDelim  = "{{"
	rightDelim = "}}"
)

const eof rune = -1

// stateFn is one state of the lexer; it returns the next state or nil when
// lexing is finished.
type stateFn func(*Stream) stateFn

// Stream is a lazily produced token stream over one template source.
type Stream struct {
	src       string
	pos       int // current scan offset
	start     int // start offset of the pending token
	state     stateFn
	queue     []Token
	lineIndex []int // byte offsets of newlines, for position lookup
	markerPos Position
	err       *qerrors.LexError
	done      bool
}

// Tokenize starts lexing source. No work happens until Next is called.
func Tokenize(source string) *Stream {
	idx := make([]int, 0, strings.Count(source, "\n"))
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			idx = append(idx, i)
		}
	}
	return &Stream{
		src:       source,
		state:     lexText,
		lineIndex: idx,
	}
}

// Next returns the next token. After the first TokenError or TokenEOF it
// keeps returning that same terminal token.
func (l *Stream) Next() Token {
	for len(l.queue) == 0 {
		if l.state == nil {
			if l.err != nil {
				return Token{Kind: TokenError, Value: l.err.Message, Pos: l.position(l.err.Offset)}
			}
			return Token{Kind: TokenEOF, Pos: l.position(l.pos)}
		}
		l.state = l.state(l)
	}
	tok := l.queue[0]
	l.queue = l.queue[1:]
	return tok
}

// Err returns the lex error encountered, if any. It is fully populated
// once Next has returned a TokenError token.
func (l *Stream) Err() *qerrors.LexError {
	return l.err
}

// position converts a byte offset into a 1-based line/column position.
func (l *Stream) position(offset int) Position {
	line := sort.SearchInts(l.lineIndex, offset)
	lineStart := 0
	if line > 0 {
		lineStart = l.lineIndex[line-1] + 1
	}
	return Position{
		Line:   line + 1,
		Column: offset - lineStart + 1,
		Offset: offset,
	}
}

func (l *Stream) next() rune {
	if l.pos >= len(l.src) {
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += w
	return r
}

func (l *Stream) backup(r rune) {
	if r != eof {
		l.pos -= utf8.RuneLen(r)
	}
}

func (l *Stream) peek() rune {
	r := l.next()
	l.backup(r)
	return r
}

func (l *Stream) emit(kind Kind) {
	l.queue = append(l.queue, Token{
		Kind:  kind,
		Value: l.src[l.start:l.pos],
		Pos:   l.position(l.start),
	})
	l.start = l.pos
}

func (l *Stream) emitValue(kind Kind, value string, start int) {
	l.queue = append(l.queue, Token{Kind: kind, Value: value, Pos: l.position(start)})
	l.start = l.pos
}

func (l *Stream) errorf(offset int, msg string) stateFn {
	pos := l.position(offset)
	l.err = &qerrors.LexError{
		Message: msg,
		Line:    pos.Line,
		Column:  pos.Column,
		Offset:  offset,
	}
	l.queue = append(l.queue, Token{Kind: TokenError, Value: msg, Pos: pos})
	return nil
}

// lexText scans plain text until the next marker opener or end of input.
func lexText(l *Stream) stateFn {
	rel := strings.Index(l.src[l.pos:], leftDelim)
	if rel == -1 {
		l.pos = len(l.src)
		if l.pos > l.start {
			l.emit(TokenText)
		}
		return nil
	}
	l.pos += rel
	if l.pos > l.start {
		l.emit(TokenText)
	}
	return lexMarkerOpen
}

// lexMarkerOpen classifies the marker by the rune following the delimiter.
func lexMarkerOpen(l *Stream) stateFn {
	openStart := l.pos
	l.markerPos = l.position(openStart)
	l.pos += len(leftDelim)
	switch l.peek() {
	case '#':
		l.next()
		l.emit(TokenBlockOpen)
	case '/':
		l.next()
		l.emit(TokenBlockClose)
	case '>':
		l.next()
		l.emit(TokenPartialOpen)
	case '~':
		l.next()
		l.emit(TokenHelperOpen)
	case '&':
		l.next()
		l.emit(TokenRawOpen)
	case '!':
		return lexComment
	default:
		l.emit(TokenExprOpen)
	}
	return lexInsideMarker
}

// lexComment consumes a {{! ... }} marker in one token.
func lexComment(l *Stream) stateFn {
	rel := strings.Index(l.src[l.pos:], rightDelim)
	if rel == -1 {
		return l.errorf(l.markerPos.Offset, "unterminated comment")
	}
	l.pos += rel + len(rightDelim)
	l.emit(TokenComment)
	return lexText
}

// lexInsideMarker tokenizes the contents of a marker until }}.
func lexInsideMarker(l *Stream) stateFn {
	for {
		r := l.next()
		switch {
		case r == eof:
			return l.errorf(l.markerPos.Offset, "unterminated marker")
		case r == '}' && l.peek() == '}':
			l.next()
			l.emit(TokenExprClose)
			return lexText
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.start = l.pos
		case r == '\'' || r == '"':
			l.backup(r)
			if s := lexString(l); s != nil {
				return s
			}
		case isIdentStart(r):
			l.backup(r)
			lexIdent(l)
		case unicode.IsDigit(r):
			l.backup(r)
			lexNumber(l)
		default:
			l.backup(r)
			if s := lexPunct(l); s != nil {
				return s
			}
		}
	}
}

func lexString(l *Stream) stateFn {
	start := l.pos
	quote := l.next()
	var b strings.Builder
	for {
		r := l.next()
		switch r {
		case eof, '\n':
			return l.errorf(start, "unterminated string literal")
		case '\\':
			esc := l.next()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteRune(esc)
			default:
				return l.errorf(start, "invalid escape sequence")
			}
		case quote:
			l.emitValue(TokenString, b.String(), start)
			return nil
		default:
			b.WriteRune(r)
		}
	}
}

func lexIdent(l *Stream) {
	for {
		r := l.next()
		if !isIdentPart(r) {
			l.backup(r)
			break
		}
	}
	l.emit(TokenIdent)
}

func lexNumber(l *Stream) {
	seenDot := false
	for {
		r := l.next()
		if unicode.IsDigit(r) {
			continue
		}
		if r == '.' && !seenDot && unicode.IsDigit(l.peek()) {
			seenDot = true
			continue
		}
		l.backup(r)
		break
	}
	l.emit(TokenNumber)
}

// twoRunePuncts are matched before single-rune punctuation.
var twoRunePuncts = []string{"==", "!=", "<=", ">=", "&&", "||"}

const singlePuncts = ".[](),?:=!<>+-*/%"

func lexPunct(l *Stream) stateFn {
	for _, p := range twoRunePuncts {
		if strings.HasPrefix(l.src[l.pos:], p) {
			l.pos += len(p)
			l.emit(TokenPunct)
			return nil
		}
	}
	r := l.next()
	if r != eof && strings.ContainsRune(singlePuncts, r) {
		l.emit(TokenPunct)
		return nil
	}
	return l.errorf(l.pos-utf8.RuneLen(r), "unexpected character "+string(r))
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '@' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
