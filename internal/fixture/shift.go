package fixture

import (
	"fmt"
	"strings"

	"github.com/vogtb/go-sheetdeps/packages/depgraph"
	"github.com/xuri/efp"
)

// ShiftFormula returns formula as it reads after being copied rows down and
// cols right. references that do not parse, such as named ranges, are kept
// as written.
func ShiftFormula(formula string, rows, cols int64) (string, error) {
	formula = depgraph.NormalizeFormula(formula)
	if formula == "" || (rows == 0 && cols == 0) {
		return formula, nil
	}

	var b strings.Builder
	b.WriteByte('=')
	ps := efp.ExcelParser()
	for _, token := range ps.Parse(formula) {
		switch token.TType {
		case efp.TokenTypeFunction:
			if token.TValue == "ARRAY" || token.TValue == "ARRAYROW" {
				return "", fmt.Errorf("array constants are not supported in %s", formula)
			}
			if token.TSubType == efp.TokenSubTypeStart {
				b.WriteString(token.TValue + "(")
			} else {
				b.WriteByte(')')
			}
		case efp.TokenTypeSubexpression:
			if token.TSubType == efp.TokenSubTypeStart {
				b.WriteByte('(')
			} else {
				b.WriteByte(')')
			}
		case efp.TokenTypeWhitespace:
			b.WriteByte(' ')
		case efp.TokenTypeOperand:
			operand, err := shiftOperand(token, rows, cols)
			if err != nil {
				return "", err
			}
			b.WriteString(operand)
		default:
			b.WriteString(token.TValue)
		}
	}
	return b.String(), nil
}

func shiftOperand(token efp.Token, rows, cols int64) (string, error) {
	switch token.TSubType {
	case efp.TokenSubTypeText:
		return `"` + strings.ReplaceAll(token.TValue, `"`, `""`) + `"`, nil
	case efp.TokenSubTypeRange:
		operand := depgraph.RequoteOperand(token.TValue)
		node, err := depgraph.ParseReferenceNode(operand)
		if err != nil {
			return operand, nil
		}
		moved, err := node.Offset(rows, cols)
		if err != nil {
			return "", fmt.Errorf("copying %s: %w", operand, err)
		}
		return moved.String(), nil
	default:
		return token.TValue, nil
	}
}
