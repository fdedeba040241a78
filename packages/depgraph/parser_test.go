package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestParser() *Parser {
	return NewParser(&ParserContext{
		CurrentWorksheetID:   1,
		CurrentWorksheetName: "Sheet1",
	})
}

func TestParserReferenceKinds(t *testing.T) {
	tests := []struct {
		input string
		kind  ReferenceKind
		ref   string
	}{
		{"A1", CellReference, "A1"},
		{"$A$1", CellReference, "A1"},
		{"A1:A1", CellReference, "A1"},
		{"A1:B2", RangeReference, "A1:B2"},
		{"B2:A1", RangeReference, "A1:B2"},
		{"sheet1!C3", CellReference, "C3"},
		{"'Sheet1'!C3:D4", RangeReference, "C3:D4"},
		{"Sheet1!A1:Sheet1!A3", RangeReference, "A1:A3"},
		{"Sheet2!A1", CrossSheetReference, ""},
		{"Sheet1!A1:Sheet2!A3", CrossSheetReference, ""},
		{"[1]Sheet1!A1", CrossSheetReference, ""},
		{"XFD1048576", CellReference, "XFD1048576"},
	}

	parser := createTestParser()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ref, err := parser.ParseReference(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ref.Kind)
			if tt.kind != CrossSheetReference {
				assert.Equal(t, tt.ref, ref.Ref.String())
				assert.Equal(t, uint32(1), ref.Ref.WorksheetID)
			}
		})
	}
}

func TestRequoteOperand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"A1", "A1"},
		{"A1:B2", "A1:B2"},
		{"Sheet2!A1", "Sheet2!A1"},
		{"My Sheet!A1", "'My Sheet'!A1"},
		{"Q1 Data!A1:A3", "'Q1 Data'!A1:A3"},
		{"My Sheet!A1:My Sheet!B2", "'My Sheet'!A1:'My Sheet'!B2"},
		{"It's!A1", "'It''s'!A1"},
		{"'My Sheet'!A1", "'My Sheet'!A1"},
		{"[1]My Sheet!A1", "[1]'My Sheet'!A1"},
		{"2024 Plan!$B$2", "'2024 Plan'!$B$2"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, RequoteOperand(tt.input))
		})
	}
}

func TestParserQuotedCrossSheet(t *testing.T) {
	parser := createTestParser()
	for _, input := range []string{"My Sheet!A1", "Q1 Data!A1:A3", "[1]My Sheet!A1"} {
		t.Run(input, func(t *testing.T) {
			ref, err := parser.ParseReference(RequoteOperand(input))
			require.NoError(t, err)
			assert.Equal(t, CrossSheetReference, ref.Kind)
		})
	}
}

func TestParserNamesOtherWorksheet(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"A1", false},
		{"Totals", false},
		{"Sheet1!A:A", false},
		{"'sheet1'!A:A", false},
		{"Sheet2!A:A", true},
		{"'Q1 Data'!A:A", true},
		{"Sheet1!A1:Sheet2!A3", true},
		{"[1]Sheet1!A1", true},
	}

	parser := createTestParser()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parser.NamesOtherWorksheet(tt.input))
		})
	}
}

func TestParserInvalidReferences(t *testing.T) {
	parser := createTestParser()
	for _, input := range []string{"Totals", "A0", "A1:", "ABCD1", "A1:B2:C3", "Sheet1!"} {
		t.Run(input, func(t *testing.T) {
			_, err := parser.ParseReference(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func TestParseRef(t *testing.T) {
	r, err := ParseRef(7, "$C$3:A1")
	require.NoError(t, err)
	assert.Equal(t, Ref{WorksheetID: 7, StartRow: 0, StartColumn: 0, EndRow: 2, EndColumn: 2}, r)

	r, err = ParseRef(7, " b2 ")
	require.NoError(t, err)
	assert.Equal(t, NewCell(7, 1, 1), r)

	_, err = ParseRef(7, "Sheet1!A1")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestReferenceNodeRoundTrip(t *testing.T) {
	for _, input := range []string{"A1", "$A$1:B$2", "Sheet2!C3", "'My Sheet'!A1:B2", "[1]Data!$Z$9"} {
		node, err := ParseReferenceNode(input)
		require.NoError(t, err)
		assert.Equal(t, input, node.String())
	}
}

func TestReferenceNodeOffset(t *testing.T) {
	node, err := ParseReferenceNode("$A1:B$2")
	require.NoError(t, err)

	moved, err := node.Offset(3, 2)
	require.NoError(t, err)
	assert.Equal(t, "$A4:D$2", moved.String())

	_, err = node.Offset(-1, 0)
	require.Error(t, err)
	assert.Equal(t, OutOfRange, CodeOf(err))

	_, err = node.Offset(0, -2)
	assert.Equal(t, OutOfRange, CodeOf(err))
}

func TestReferenceKindString(t *testing.T) {
	assert.Equal(t, "cell", CellReference.String())
	assert.Equal(t, "range", RangeReference.String())
	assert.Equal(t, "cross-sheet", CrossSheetReference.String())
}
