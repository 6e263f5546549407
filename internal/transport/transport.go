package transport

import (
	"context"
	"html"
	"strings"

	"github.com/botflow/engine/pkg/api"
)

type (
	// Transport delivers outbound messages and documents to end users
	// through the tenant's messaging channel
	Transport interface {
		SendMessage(ctx context.Context, msg *Message) error
		SendDocument(ctx context.Context, doc *Document) error
		SendGroupOp(ctx context.Context, op *GroupOp) error
	}

	// Message is one outbound text delivery, optionally carrying a keyboard
	Message struct {
		TenantID   api.TenantID `json:"tenant_id"`
		Chat       string       `json:"chat"`
		Text       string       `json:"text"`
		FormatMode string       `json:"format_mode,omitempty"`
		Buttons    []api.Button `json:"buttons,omitempty"`
		Inline     bool         `json:"inline,omitempty"`
	}

	// Document is one outbound file delivery
	Document struct {
		TenantID api.TenantID `json:"tenant_id"`
		Chat     string       `json:"chat"`
		Filename string       `json:"filename"`
		Caption  string       `json:"caption,omitempty"`
		URL      string       `json:"url,omitempty"`
		Data     []byte       `json:"data,omitempty"`
	}

	// GroupOp is one group operation carried out by the channel bridge on
	// behalf of a user
	GroupOp struct {
		Payload  map[string]string `json:"payload,omitempty"`
		TenantID api.TenantID      `json:"tenant_id"`
		UserID   api.UserID        `json:"user_id,omitempty"`
		Action   api.GroupAction   `json:"action"`
		Group    string            `json:"group"`
	}
)

var markdownEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "`", "\\`",
)

// EscapeValue escapes an interpolated value for the message's format mode
// so user-supplied text cannot break the surrounding markup
func EscapeValue(s, formatMode string) string {
	switch formatMode {
	case api.FormatModeHTML:
		return html.EscapeString(s)
	case api.FormatModeMarkdown:
		return markdownEscaper.Replace(s)
	}
	return s
}
