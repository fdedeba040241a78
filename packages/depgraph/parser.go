package depgraph

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ReferenceKind is the closed set of reference shapes found in formulas
type ReferenceKind int

const (
	// CellReference is a single cell on the formula's own worksheet
	CellReference ReferenceKind = iota
	// RangeReference is a rectangle on the formula's own worksheet
	RangeReference
	// CrossSheetReference points at another worksheet or an external
	// workbook. it is recognised so it can be rejected.
	CrossSheetReference
)

func (k ReferenceKind) String() string {
	switch k {
	case CellReference:
		return "cell"
	case RangeReference:
		return "range"
	case CrossSheetReference:
		return "cross-sheet"
	default:
		return "unknown"
	}
}

// CellNode is one corner of a reference as written, with its absolute
// markers kept so the reference can be moved and rendered again
type CellNode struct {
	Row            uint32 // zero-based
	Column         uint32 // zero-based
	AbsoluteRow    bool
	AbsoluteColumn bool
}

func (n CellNode) String() string {
	var b strings.Builder
	if n.AbsoluteColumn {
		b.WriteByte(charDollar)
	}
	b.WriteString(ColumnName(n.Column))
	if n.AbsoluteRow {
		b.WriteByte(charDollar)
	}
	b.WriteString(strconv.FormatUint(uint64(n.Row)+1, 10))
	return b.String()
}

// ReferenceNode is a parsed reference operand. End equals Start for a
// single cell.
type ReferenceNode struct {
	Workbook     string // external workbook qualifier, empty when absent
	Worksheet    string // worksheet qualifier of the start corner
	EndWorksheet string // worksheet qualifier written after the colon, rare
	Start        CellNode
	End          CellNode
	IsRange      bool
	Position     NodePosition
}

// NodePosition is the rune span of a node in its input
type NodePosition struct {
	Start int
	End   int
}

// Offset returns the node with its relative corners moved by rows and
// cols. absolute corners stay where they are. moving a corner before the
// first row or column is an error.
func (n ReferenceNode) Offset(rows, cols int64) (ReferenceNode, error) {
	start, err := offsetCell(n.Start, rows, cols)
	if err != nil {
		return ReferenceNode{}, err
	}
	end, err := offsetCell(n.End, rows, cols)
	if err != nil {
		return ReferenceNode{}, err
	}
	n.Start, n.End = start, end
	return n, nil
}

func offsetCell(c CellNode, rows, cols int64) (CellNode, error) {
	if !c.AbsoluteRow {
		row := int64(c.Row) + rows
		if row < 0 || row > math.MaxUint32 {
			return CellNode{}, NewApplicationError(OutOfRange, fmt.Sprintf("row offset %d moves %s off the sheet", rows, c))
		}
		c.Row = uint32(row)
	}
	if !c.AbsoluteColumn {
		col := int64(c.Column) + cols
		if col < 0 || col > math.MaxUint32 {
			return CellNode{}, NewApplicationError(OutOfRange, fmt.Sprintf("column offset %d moves %s off the sheet", cols, c))
		}
		c.Column = uint32(col)
	}
	return c, nil
}

// String renders the node back to formula text
func (n ReferenceNode) String() string {
	var b strings.Builder
	if n.Workbook != "" {
		b.WriteString("[" + n.Workbook + "]")
	}
	if n.Worksheet != "" {
		b.WriteString(quoteWorksheet(n.Worksheet) + "!")
	}
	b.WriteString(n.Start.String())
	if n.IsRange {
		b.WriteByte(charColon)
		if n.EndWorksheet != "" {
			b.WriteString(quoteWorksheet(n.EndWorksheet) + "!")
		}
		b.WriteString(n.End.String())
	}
	return b.String()
}

// quoteWorksheet quotes a worksheet name when it is not a plain identifier
func quoteWorksheet(name string) string {
	plain := name != ""
	for i, ch := range name {
		isLetter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == charUnderscore
		isDigit := ch >= '0' && ch <= '9'
		if !isLetter && !(isDigit && i > 0) && ch != charPeriod {
			plain = false
			break
		}
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func unquoteWorksheet(name string) string {
	if len(name) >= 2 && name[0] == charApostrophe && name[len(name)-1] == charApostrophe {
		return strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	return name
}

// RequoteOperand puts back the quotes formula tokenizers like efp strip
// from worksheet names: "My Sheet!A1" becomes "'My Sheet'!A1" and
// "It's!A1" becomes "'It''s'!A1". qualifiers that need no quotes, or are
// quoted already, are left as they are.
func RequoteOperand(operand string) string {
	if !strings.ContainsRune(operand, charExclaim) {
		return operand
	}
	// worksheet names cannot contain a colon
	parts := strings.Split(operand, string(charColon))
	for i, part := range parts {
		qualifier, cell, ok := splitQualifier(part)
		if !ok {
			continue
		}
		workbook, sheet := splitWorkbook(qualifier)
		if unquoteWorksheet(sheet) != sheet {
			continue
		}
		parts[i] = workbook + quoteWorksheet(sheet) + string(charExclaim) + cell
	}
	return strings.Join(parts, string(charColon))
}

// splitQualifier splits "Sheet!A1" at its last '!'
func splitQualifier(part string) (qualifier, cell string, ok bool) {
	i := strings.LastIndexByte(part, charExclaim)
	if i < 0 {
		return "", part, false
	}
	return part[:i], part[i+1:], true
}

// splitWorkbook splits "[1]Sheet" into "[1]" and "Sheet"
func splitWorkbook(qualifier string) (workbook, sheet string) {
	if strings.HasPrefix(qualifier, string(charLBracket)) {
		if j := strings.IndexByte(qualifier, charRBracket); j > 0 {
			return qualifier[:j+1], qualifier[j+1:]
		}
	}
	return "", qualifier
}

// ParserContext provides the worksheet a formula lives on. it is passed
// explicitly so parsing holds no shared state.
type ParserContext struct {
	CurrentWorksheetID   uint32
	CurrentWorksheetName string
}

// Parser resolves reference operands against a ParserContext
type Parser struct {
	context *ParserContext
}

// NewParser creates a parser for formulas on the context's worksheet
func NewParser(context *ParserContext) *Parser {
	if context == nil {
		context = &ParserContext{}
	}
	return &Parser{context: context}
}

// Reference is the classified form of one formula operand
type Reference struct {
	Kind ReferenceKind
	Ref  Ref // meaningless for CrossSheetReference
	Node ReferenceNode
}

// ParseReferenceNode lexes and parses one operand without resolving it
func ParseReferenceNode(input string) (ReferenceNode, error) {
	tokens, err := NewLexerForReference(input).Tokenize()
	if err != nil {
		return ReferenceNode{}, err
	}
	return parseReferenceTokens(input, tokens)
}

// ParseReference parses one operand and classifies it. references
// qualified with another worksheet or any workbook come back as
// CrossSheetReference, the caller decides what to do with them.
func (p *Parser) ParseReference(input string) (Reference, error) {
	node, err := ParseReferenceNode(input)
	if err != nil {
		return Reference{}, err
	}

	if node.Workbook != "" || !p.isCurrentWorksheet(node.Worksheet) || !p.isCurrentWorksheet(node.EndWorksheet) {
		return Reference{Kind: CrossSheetReference, Node: node}, nil
	}

	ref := rangeFromCorners(p.context.CurrentWorksheetID, node.Start, node.End)
	kind := RangeReference
	if ref.IsCell() {
		kind = CellReference
	}
	return Reference{Kind: kind, Ref: ref, Node: node}, nil
}

// NamesOtherWorksheet reports whether operand carries a workbook qualifier
// or a worksheet qualifier other than the current worksheet. it works on
// operands that do not parse, so one the parser rejects still counts as
// pointing elsewhere.
func (p *Parser) NamesOtherWorksheet(operand string) bool {
	for _, part := range strings.Split(operand, string(charColon)) {
		qualifier, _, ok := splitQualifier(part)
		if !ok {
			continue
		}
		if strings.ContainsRune(qualifier, charLBracket) || !p.isCurrentWorksheet(unquoteWorksheet(qualifier)) {
			return true
		}
	}
	return false
}

// isCurrentWorksheet reports whether an optional qualifier names the
// worksheet being parsed. sheet names compare case-insensitively.
func (p *Parser) isCurrentWorksheet(name string) bool {
	return name == "" || strings.EqualFold(name, p.context.CurrentWorksheetName)
}

// ParseRef parses an unqualified address like "B2", "A1:C3" or "$A$1"
// into a Ref on worksheetID. reversed corners are normalized.
func ParseRef(worksheetID uint32, address string) (Ref, error) {
	tokens, err := NewLexerForAddress(strings.TrimSpace(address)).Tokenize()
	if err != nil {
		return Ref{}, err
	}
	node, err := parseReferenceTokens(address, tokens)
	if err != nil {
		return Ref{}, err
	}
	return rangeFromCorners(worksheetID, node.Start, node.End), nil
}

// rangeFromCorners normalizes the range so start is always less than or
// equal to end
func rangeFromCorners(worksheetID uint32, a, b CellNode) Ref {
	return Ref{
		WorksheetID: worksheetID,
		StartRow:    min(a.Row, b.Row),
		StartColumn: min(a.Column, b.Column),
		EndRow:      max(a.Row, b.Row),
		EndColumn:   max(a.Column, b.Column),
	}
}

// parseReferenceTokens builds a ReferenceNode from a validated token
// stream: [workbook] [worksheet] cell [":" [worksheet] cell]
func parseReferenceTokens(input string, tokens []Token) (ReferenceNode, error) {
	var node ReferenceNode
	pos := 0
	next := func() Token {
		tok := tokens[pos]
		if tok.Type != TokenEOF {
			pos++
		}
		return tok
	}

	tok := next()
	node.Position.Start = tok.Pos
	if tok.Type == TokenIdentifier {
		return ReferenceNode{}, wrapError(InvalidArgument, ErrInvalidAddress,
			fmt.Sprintf("named range %s is not resolvable", quoteValue(tok.Value)))
	}
	if tok.Type == TokenWorkbook {
		node.Workbook = tok.Value
		tok = next()
	}
	if tok.Type == TokenWorksheet {
		node.Worksheet = tok.Value
		tok = next()
	}
	if tok.Type != TokenCell {
		return ReferenceNode{}, wrapError(InvalidArgument, ErrInvalidAddress,
			fmt.Sprintf("no cell found in %s", quoteValue(input)))
	}
	start, err := parseCellAddress(tok.Value)
	if err != nil {
		return ReferenceNode{}, err
	}
	node.Start, node.End = start, start

	tok = next()
	if tok.Type == TokenColon {
		tok = next()
		if tok.Type == TokenWorksheet {
			node.EndWorksheet = tok.Value
			tok = next()
		}
		if tok.Type != TokenCell {
			return ReferenceNode{}, wrapError(InvalidArgument, ErrInvalidAddress,
				fmt.Sprintf("range %s has no end cell", quoteValue(input)))
		}
		end, err := parseCellAddress(tok.Value)
		if err != nil {
			return ReferenceNode{}, err
		}
		node.End = end
		node.IsRange = true
		tok = next()
	}

	if tok.Type != TokenEOF {
		return ReferenceNode{}, wrapError(InvalidArgument, ErrInvalidAddress,
			fmt.Sprintf("trailing input in %s", quoteValue(input)))
	}
	node.Position.End = len([]rune(input))
	return node, nil
}

// parseCellAddress parses a cell address like "A1" or "$B$7" into
// zero-based row and column indices
func parseCellAddress(cell string) (CellNode, error) {
	letters, digits, absCol, absRow, ok := splitCell(cell)
	if !ok {
		return CellNode{}, wrapError(InvalidArgument, ErrInvalidAddress,
			fmt.Sprintf("invalid cell reference: %s", cell))
	}

	// parse column (A=0, B=1, ..., Z=25, AA=26, AB=27, ...)
	colStr := strings.ToUpper(letters)
	col := uint32(0)
	for i, ch := range colStr {
		col = col*26 + uint32(ch-'A')
		if i < len(colStr)-1 {
			col++ // account for positional notation
		}
	}

	// parse row (1-based in notation, but we want 0-based)
	rowNum, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return CellNode{}, wrapError(InvalidArgument, ErrInvalidAddress,
			fmt.Sprintf("invalid row number: %s", digits))
	}
	if rowNum < 1 {
		return CellNode{}, wrapError(InvalidArgument, ErrInvalidAddress,
			fmt.Sprintf("row number must be positive: %d", rowNum))
	}

	return CellNode{
		Row:            uint32(rowNum - 1),
		Column:         col,
		AbsoluteRow:    absRow,
		AbsoluteColumn: absCol,
	}, nil
}
