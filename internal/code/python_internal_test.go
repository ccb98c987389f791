package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanDocstring(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		want    string
	}{
		{"single line triple quotes", `"""Add things."""`, "Add things."},
		{"single quotes", `'short'`, "short"},
		{"raw prefix", `r'''raw \d'''`, `raw \d`},
		{"dedents continuation lines", "\"\"\"Title.\n\n    Body line.\n      Indented.\n    \"\"\"", "Title.\n\nBody line.\n  Indented."},
		{"crlf", "\"\"\"A.\r\n    B.\r\n    \"\"\"", "A.\nB."},
		{"empty", `""""""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanDocstring(tt.literal))
		})
	}
}

func TestSyntaxErrorMessage(t *testing.T) {
	assert.Equal(t, "invalid syntax (line 3, column 7)", (&SyntaxError{Line: 3, Column: 7, Msg: "invalid syntax"}).Error())
	assert.Equal(t, "boom", (&SyntaxError{Msg: "boom"}).Error())
}
