package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[EventType]string{
	EventConfirmRegistration: "Confirm Registration",
	EventPasswordChanged:     "Your password was changed",
	EventAccountDeleted:      "Your account was deleted",
}

type Renderer struct {
	tpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tpl: tpl}, nil
}

// Render 返回 subject 与 HTML 正文
func (r *Renderer) Render(n Notification) (string, string, error) {
	subject, ok := subjects[n.Type]
	if !ok {
		return "", "", fmt.Errorf("notify: unknown event type %q", n.Type)
	}
	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, string(n.Type)+".html", n.Data); err != nil {
		return "", "", fmt.Errorf("notify: render %s: %w", n.Type, err)
	}
	return subject, buf.String(), nil
}
