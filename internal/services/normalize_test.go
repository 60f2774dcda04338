package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEvent(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		button string
		want   Intent
	}{
		{
			name:   "button payload wins over body",
			body:   "Save",
			button: "confirm_save",
			want:   Intent{Kind: IntentButton, Button: "confirm_save"},
		},
		{
			name: "greeting becomes menu command",
			body: "Hi",
			want: Intent{Kind: IntentCommand, Command: CommandMenu},
		},
		{
			name: "slash command",
			body: "/add",
			want: Intent{Kind: IntentCommand, Command: CommandAdd},
		},
		{
			name: "uppercase command",
			body: "IMPORT",
			want: Intent{Kind: IntentCommand, Command: CommandImport},
		},
		{
			name: "stop aliases cancel",
			body: "stop",
			want: Intent{Kind: IntentCommand, Command: CommandCancel},
		},
		{
			name: "free text stays text",
			body: "  coffee 80 and auto 120 yesterday  ",
			want: Intent{Kind: IntentText, Text: "coffee 80 and auto 120 yesterday"},
		},
		{
			name: "command word inside a sentence is text",
			body: "please add my lunch",
			want: Intent{Kind: IntentText, Text: "please add my lunch"},
		},
		{
			name: "empty body is empty text",
			body: "   ",
			want: Intent{Kind: IntentText, Text: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEvent(tt.body, tt.button)
			assert.Equal(t, tt.want, got)
		})
	}
}
