package depgraph

import "strings"

// TokenType represents different types of tokens in a reference operand
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWorkbook
	TokenWorksheet
	TokenCell
	TokenColon
	TokenIdentifier
	TokenWhitespace
	TokenError
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenWorkbook:
		return "workbook"
	case TokenWorksheet:
		return "worksheet"
	case TokenCell:
		return "cell"
	case TokenColon:
		return "colon"
	case TokenIdentifier:
		return "identifier"
	case TokenWhitespace:
		return "whitespace"
	default:
		return "error"
	}
}

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charApostrophe = '\''
	charColon      = ':'
	charDollar     = '$'
	charExclaim    = '!'
	charLBracket   = '['
	charRBracket   = ']'
	charPeriod     = '.'
	charUnderscore = '_'
	charBackslash  = '\\'
)

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterWorkbook
	StateAfterWorksheet
	StateAfterCell
	StateAfterColon
	StateAfterIdentifier
)

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart: {
		TokenWorkbook:   true, // [1]Sheet!A1
		TokenWorksheet:  true,
		TokenCell:       true,
		TokenIdentifier: true, // named range
	},
	StateAfterWorkbook: {
		TokenWorksheet: true,
	},
	StateAfterWorksheet: {
		TokenCell: true,
	},
	StateAfterCell: {
		TokenColon: true,
		TokenEOF:   true,
	},
	StateAfterColon: {
		TokenWorksheet: true, // Sheet1!A1:Sheet2!B2
		TokenCell:      true,
	},
	StateAfterIdentifier: {
		TokenEOF: true,
	},
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// LexerContext defines the context for lexing
type LexerContext struct {
	InitialState   TokenState
	ExpectedTokens map[TokenType]bool
}

// Lexer tokenizes a single reference operand such as "A1", "$B$2:C9",
// "Sheet2!A1" or "'My Sheet'!A1:B2"
type Lexer struct {
	input   string
	runes   []rune // UTF-8 aware representation, sheet names are not ASCII
	pos     int
	state   TokenState
	tokens  []Token
	context *LexerContext
}

// NewLexerWithContext creates a new lexer with specific context
func NewLexerWithContext(input string, context *LexerContext) *Lexer {
	return &Lexer{
		input:   input,
		runes:   []rune(input),
		state:   context.InitialState,
		tokens:  []Token{},
		context: context,
	}
}

// NewLexerForReference creates a lexer for cell references, ranges and
// named ranges with optional workbook and worksheet qualifiers
func NewLexerForReference(input string) *Lexer {
	return NewLexerWithContext(input, &LexerContext{InitialState: StateStart})
}

// NewLexerForAddress creates a lexer that only accepts unqualified cells
// and ranges, e.g. addresses typed on the command line
func NewLexerForAddress(input string) *Lexer {
	return NewLexerWithContext(input, &LexerContext{
		InitialState: StateStart,
		ExpectedTokens: map[TokenType]bool{
			TokenCell:  true,
			TokenColon: true,
			TokenEOF:   true,
		},
	})
}

// Tokenize tokenizes the entire input. the token list ends with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	l.pos = 0
	for {
		tok := l.nextToken()
		if tok.Type == TokenError {
			return nil, wrapError(InvalidArgument, ErrInvalidAddress, tok.Value)
		}
		if tok.Type == TokenWhitespace {
			continue
		}
		if !l.validateTransition(tok.Type) {
			return nil, wrapError(InvalidArgument, ErrInvalidAddress,
				"unexpected "+tok.Type.String()+" "+quoteValue(tok.Value)+" in "+quoteValue(l.input))
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			return l.tokens, nil
		}
		l.updateState(tok.Type)
	}
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	if l.context != nil && len(l.context.ExpectedTokens) > 0 && !l.context.ExpectedTokens[tokenType] {
		return false
	}
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenWorkbook:
		l.state = StateAfterWorkbook
	case TokenWorksheet:
		l.state = StateAfterWorksheet
	case TokenCell:
		l.state = StateAfterCell
	case TokenColon:
		l.state = StateAfterColon
	case TokenIdentifier:
		l.state = StateAfterIdentifier
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	switch {
	case ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn:
		l.skipWhitespace()
		return Token{Type: TokenWhitespace, Pos: startPos}
	case ch == charLBracket:
		return l.scanWorkbook()
	case ch == charApostrophe:
		return l.scanQuotedWorksheet()
	case ch == charColon:
		l.pos++
		return Token{Type: TokenColon, Value: ":", Pos: startPos}
	case ch == charDollar || l.isAlpha(ch) || ch == charUnderscore || ch == charBackslash:
		return l.scanIdentifierOrCell()
	case l.isDigit(ch):
		// unquoted sheet names may start with a digit, "2024!A1"
		return l.scanIdentifierOrCell()
	}

	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch > 127
}

func (l *Lexer) isNameChar(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch) || ch == charUnderscore || ch == charPeriod || ch == charBackslash
}

// scanWorkbook scans an external workbook qualifier like [1] or [Book.xlsx]
func (l *Lexer) scanWorkbook() Token {
	startPos := l.pos
	l.pos++ // consume '['

	for l.pos < len(l.runes) && l.current() != charRBracket {
		l.pos++
	}
	if l.pos >= len(l.runes) {
		return Token{Type: TokenError, Value: "unclosed workbook name", Pos: startPos}
	}

	name := l.substring(startPos+1, l.pos)
	l.pos++ // consume ']'
	return Token{Type: TokenWorkbook, Value: name, Pos: startPos}
}

// scanQuotedWorksheet scans 'Sheet Name'! where a doubled apostrophe
// stands for one apostrophe in the name
func (l *Lexer) scanQuotedWorksheet() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var name []rune
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charApostrophe {
			if l.peek(1) == charApostrophe {
				name = append(name, charApostrophe)
				l.pos += 2
				continue
			}
			break
		}
		name = append(name, ch)
		l.pos++
	}

	if l.pos >= len(l.runes) {
		return Token{Type: TokenError, Value: "unclosed worksheet name", Pos: startPos}
	}
	l.pos++ // consume closing quote

	if l.current() != charExclaim {
		return Token{Type: TokenError, Value: "expected ! after worksheet name", Pos: startPos}
	}
	l.pos++ // consume !

	return Token{Type: TokenWorksheet, Value: string(name), Pos: startPos}
}

// scanIdentifierOrCell scans cells ("A1", "$A$1"), unquoted worksheet
// qualifiers ("Sheet1!") and named ranges
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && (l.isNameChar(l.current()) || l.current() == charDollar) {
		l.pos++
	}
	value := l.substring(startPos, l.pos)

	// a worksheet qualifier wins over a cell, "Sheet1!" looks like a cell
	if l.current() == charExclaim {
		l.pos++ // consume !
		if strings.ContainsRune(value, charDollar) {
			return Token{Type: TokenError, Value: "invalid worksheet name: " + value, Pos: startPos}
		}
		return Token{Type: TokenWorksheet, Value: value, Pos: startPos}
	}

	if isCell(value) {
		return Token{Type: TokenCell, Value: value, Pos: startPos}
	}

	if strings.ContainsRune(value, charDollar) {
		return Token{Type: TokenError, Value: "invalid cell reference: " + value, Pos: startPos}
	}
	return Token{Type: TokenIdentifier, Value: value, Pos: startPos}
}

// isCell checks if a string is a valid cell reference (e.g., A1, $B$12)
func isCell(s string) bool {
	_, _, _, _, ok := splitCell(s)
	return ok
}

// splitCell splits "$AB$12" into its column letters, row digits and
// absolute markers
func splitCell(s string) (letters, digits string, absCol, absRow, ok bool) {
	i := 0
	if i < len(s) && s[i] == charDollar {
		absCol = true
		i++
	}
	letterStart := i
	for i < len(s) && ((s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z')) {
		i++
	}
	letters = s[letterStart:i]
	if i < len(s) && s[i] == charDollar {
		absRow = true
		i++
	}
	digitStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	digits = s[digitStart:i]

	// must have at least one letter, one digit and nothing after
	if len(letters) == 0 || len(letters) > 3 || len(digits) == 0 || i != len(s) {
		return "", "", false, false, false
	}
	return letters, digits, absCol, absRow, true
}

func quoteValue(s string) string {
	return "'" + s + "'"
}
