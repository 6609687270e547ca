package lexer

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
	diags     *util.Diagnostics
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config, diags *util.Diagnostics) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg, diags: diags,
	}
}

// Tokenize runs the lexer to completion. The last token is always EOF.
func (l *Lexer) Tokenize() ([]token.Token, error) {
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) Next() (token.Token, error) {
	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine), nil
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine), nil
	}
	if unicode.IsDigit(ch) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine), nil
	case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine), nil
	case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine), nil
	case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine), nil
	case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine), nil
	case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine), nil
	case '+': return l.makeToken(token.Plus, "", startPos, startCol, startLine), nil
	case '-': return l.makeToken(token.Minus, "", startPos, startCol, startLine), nil
	case '*': return l.makeToken(token.Star, "", startPos, startCol, startLine), nil
	case '/': return l.makeToken(token.Slash, "", startPos, startCol, startLine), nil
	case ':': return l.matchThen('=', token.Define, token.Colon, startPos, startCol, startLine), nil
	case '<': return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine), nil
	case '>': return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine), nil
	case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine), nil
	case '&': return l.matchThen('&', token.AndAnd, token.And, startPos, startCol, startLine), nil
	case '!':
		if l.match('=') {
			return l.makeToken(token.Neq, "", startPos, startCol, startLine), nil
		}
	case '|':
		if l.match('|') {
			return l.makeToken(token.OrOr, "", startPos, startCol, startLine), nil
		}
	case '"':
		return l.stringLiteral(startPos, startCol, startLine)
	}

	tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
	return tok, util.Errorf(util.ErrSyntax, tok, "unexpected character '%c'", ch)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Pos: startPos, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() error {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				if err := l.blockComment(); err != nil {
					return err
				}
			case '/':
				l.lineComment()
			default:
				return nil
			}
		default:
			return nil
		}
	}
}

func (l *Lexer) blockComment() error {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	startTok.Len = 2
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return nil
		}
		l.advance()
	}
	return util.Errorf(util.ErrSyntax, startTok, "unterminated block comment")
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
	}
	return tok
}

// ParseNumber converts a decimal or 0x-prefixed literal to its 64-bit pattern.
func ParseNumber(text string) (uint64, error) {
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		return strconv.ParseUint(text[2:], 16, 64)
	}
	return strconv.ParseUint(text, 10, 64)
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) (token.Token, error) {
	isHex := false
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		isHex = true
		l.advance()
		l.advance()
	}
	for unicode.IsDigit(l.peek()) || (isHex && strings.ContainsRune("abcdefABCDEF", l.peek())) {
		l.advance()
	}
	if unicode.IsLetter(l.peek()) || l.peek() == '_' {
		for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
		tok := l.makeToken(token.Number, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
		return tok, util.Errorf(util.ErrSyntax, tok, "malformed integer literal '%s'", tok.Value)
	}

	tok := l.makeToken(token.Number, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
	val, err := ParseNumber(tok.Value)
	if err != nil {
		return tok, util.Errorf(util.ErrSyntax, tok, "integer literal '%s' out of range", tok.Value)
	}
	if val > math.MaxInt64 {
		l.diags.Warn(config.WarnOverflow, tok, "integer literal '%s' overflows int and wraps to %d", tok.Value, int64(val))
	}
	return tok, nil
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) (token.Token, error) {
	var sb strings.Builder
	for !l.isAtEnd() && l.peek() != '"' && l.peek() != '\n' {
		ch := l.advance()
		if ch != '\\' || !l.cfg.IsFeatureEnabled(config.FeatCEsc) {
			sb.WriteRune(ch)
			continue
		}
		escStart, escCol, escLine := l.pos-1, l.column-1, l.line
		r, err := l.decodeEscape(escStart, escCol, escLine)
		if err != nil {
			return token.Token{}, err
		}
		sb.WriteRune(r)
	}
	if l.isAtEnd() || l.peek() == '\n' {
		tok := l.makeToken(token.String, "", startPos, startCol, startLine)
		return tok, util.Errorf(util.ErrSyntax, tok, "unterminated string literal")
	}
	l.advance()
	return l.makeToken(token.String, sb.String(), startPos, startCol, startLine), nil
}

func (l *Lexer) decodeEscape(startPos, startCol, startLine int) (rune, error) {
	if l.isAtEnd() {
		tok := l.makeToken(token.String, "", startPos, startCol, startLine)
		return 0, util.Errorf(util.ErrSyntax, tok, "unterminated string literal")
	}
	ch := l.advance()
	switch ch {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '0':
		return 0, nil
	case '\\', '"', '\'':
		return ch, nil
	case 'x':
		return l.parseHexEscape(startPos, startCol, startLine)
	}
	tok := l.makeToken(token.String, "", startPos, startCol, startLine)
	l.diags.Warn(config.WarnUnrecognizedEscape, tok, "unrecognized escape sequence '\\%c'", ch)
	return ch, nil
}

func (l *Lexer) parseHexEscape(startPos, startCol, startLine int) (rune, error) {
	var val rune
	for i := 0; i < 2; i++ {
		d := unicode.ToLower(l.peek())
		switch {
		case d >= '0' && d <= '9':
			val = val*16 + (d - '0')
		case d >= 'a' && d <= 'f':
			val = val*16 + (d - 'a' + 10)
		default:
			tok := l.makeToken(token.String, "", startPos, startCol, startLine)
			return 0, util.Errorf(util.ErrSyntax, tok, "'\\x' escape needs two hex digits")
		}
		l.advance()
	}
	return val, nil
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}
