package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(tokens []Token) []TokenType {
	out := make([]TokenType, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Type)
	}
	return out
}

func TestLexerReferences(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{"A1", []TokenType{TokenCell, TokenEOF}},
		{"$B$2:c9", []TokenType{TokenCell, TokenColon, TokenCell, TokenEOF}},
		{"Sheet2!A1", []TokenType{TokenWorksheet, TokenCell, TokenEOF}},
		{"'My Sheet'!A1:B2", []TokenType{TokenWorksheet, TokenCell, TokenColon, TokenCell, TokenEOF}},
		{"[1]Sheet1!A1", []TokenType{TokenWorkbook, TokenWorksheet, TokenCell, TokenEOF}},
		{"Sheet1!A1:Sheet1!B2", []TokenType{TokenWorksheet, TokenCell, TokenColon, TokenWorksheet, TokenCell, TokenEOF}},
		{"2024!A1", []TokenType{TokenWorksheet, TokenCell, TokenEOF}},
		{"Totals", []TokenType{TokenIdentifier, TokenEOF}},
		{" A1 : B2 ", []TokenType{TokenCell, TokenColon, TokenCell, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := NewLexerForReference(tt.input).Tokenize()
			require.NoError(t, err)
			assert.Equal(t, tt.want, tokenTypes(tokens))
		})
	}
}

func TestLexerQuotedWorksheet(t *testing.T) {
	tokens, err := NewLexerForReference("'Bob''s 数据'!A1").Tokenize()
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "Bob's 数据", tokens[0].Value)
	assert.Equal(t, 0, tokens[0].Pos)
	assert.Equal(t, "A1", tokens[1].Value)
}

func TestLexerInvalidReferences(t *testing.T) {
	inputs := []string{
		"",
		"A1:",
		":A1",
		"'Unclosed!A1",
		"'Sheet'A1",
		"[Book.xlsx",
		"A1 B2",
		"$Sheet!A1",
		"A$",
		"#REF!",
		"Totals:A1",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := NewLexerForReference(input).Tokenize()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidAddress)
			assert.Equal(t, InvalidArgument, CodeOf(err))
		})
	}
}

func TestLexerForAddressRejectsQualifiers(t *testing.T) {
	for _, input := range []string{"Sheet1!A1", "[1]Sheet1!A1", "Totals"} {
		_, err := NewLexerForAddress(input).Tokenize()
		assert.ErrorIs(t, err, ErrInvalidAddress, input)
	}

	tokens, err := NewLexerForAddress("A1:B2").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []TokenType{TokenCell, TokenColon, TokenCell, TokenEOF}, tokenTypes(tokens))
}
