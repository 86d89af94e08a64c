package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var defaultSubjects = map[string]string{
	"invoice_sent":             "New invoice {{number}}",
	"invoice_disputed":         "Invoice {{number}} was disputed",
	"invoice_dispute_resolved": "Dispute on invoice {{number}} resolved",
	"invoice_paid":             "Invoice {{number}} paid",
}

// Render executes the named template and derives its subject.
func Render(name string, data map[string]any) (subject string, body string, err error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", "", fmt.Errorf("render template %s: %w", name, err)
	}

	if s, ok := data["subject"].(string); ok && s != "" {
		return s, buf.String(), nil
	}
	subject = "Notification from FreightPay"
	if pattern, ok := defaultSubjects[name]; ok {
		number, _ := data["invoice_number"].(string)
		subject = strings.ReplaceAll(pattern, "{{number}}", number)
	}
	return subject, buf.String(), nil
}
