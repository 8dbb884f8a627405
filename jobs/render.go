package jobs

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns a mail payload into an HTML body.
type Renderer struct {
	templates *template.Template
	title     cases.Caser
}

// NewRenderer parses the embedded mail templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("mail: parse templates: %w", err)
	}
	return &Renderer{templates: tmpl, title: cases.Title(language.English)}, nil
}

type mailView struct {
	Name    string
	Code    string
	Subject string
}

// Render executes the template named by the payload.
func (r *Renderer) Render(p SendEmailPayload) (string, error) {
	name := string(p.Template) + ".html"
	if r.templates.Lookup(name) == nil {
		return "", fmt.Errorf("mail: template %q not found", p.Template)
	}
	var buf bytes.Buffer
	view := mailView{Name: r.displayName(p.FullName), Code: p.Code, Subject: p.Subject}
	if err := r.templates.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", p.Template, err)
	}
	return buf.String(), nil
}

func (r *Renderer) displayName(fullName string) string {
	name := strings.Join(strings.Fields(fullName), " ")
	if name == "" {
		return "there"
	}
	return r.title.String(name)
}
