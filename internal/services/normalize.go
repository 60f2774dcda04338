package services

import "strings"

// IntentKind classifies an inbound chat event
type IntentKind string

const (
	IntentCommand IntentKind = "command"
	IntentButton  IntentKind = "button"
	IntentText    IntentKind = "text"
)

// Commands recognized from free text, after aliasing
const (
	CommandMenu   = "menu"
	CommandAdd    = "add"
	CommandImport = "import"
	CommandCancel = "cancel"
)

// Intent is one normalized inbound event: exactly one of Command, Button, or
// Text semantics applies, per Kind.
type Intent struct {
	Kind    IntentKind
	Command string // set when Kind == IntentCommand
	Button  string // set when Kind == IntentButton
	Text    string // set when Kind == IntentText, trimmed but otherwise verbatim
}

// commandAliases maps the words users actually type to canonical commands
var commandAliases = map[string]string{
	"hi":     CommandMenu,
	"hello":  CommandMenu,
	"hey":    CommandMenu,
	"help":   CommandMenu,
	"menu":   CommandMenu,
	"start":  CommandMenu,
	"add":    CommandAdd,
	"new":    CommandAdd,
	"import": CommandImport,
	"cancel": CommandCancel,
	"stop":   CommandCancel,
	"exit":   CommandCancel,
}

// NormalizeEvent turns a raw webhook delivery into a typed intent. A button
// payload always wins over the message body; a one-word body matching a known
// command (optionally with a leading slash) becomes a command; everything
// else is free text.
func NormalizeEvent(body, buttonPayload string) Intent {
	if payload := strings.TrimSpace(buttonPayload); payload != "" {
		return Intent{Kind: IntentButton, Button: payload}
	}

	text := strings.TrimSpace(body)
	word := strings.ToLower(strings.TrimPrefix(text, "/"))
	if cmd, ok := commandAliases[word]; ok {
		return Intent{Kind: IntentCommand, Command: cmd}
	}

	return Intent{Kind: IntentText, Text: text}
}
