// Package view renders the embedded HTML templates.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/shared"
	"github.com/sheetdesk/sheetdesk/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        string
	Data        any
}

var printer = message.NewPrinter(language.Hebrew)

// FormatNumber groups digits the way the UI locale does.
func FormatNumber(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatPercent renders a growth figure with one decimal.
func FormatPercent(f float64) string {
	return printer.Sprintf("%.1f%%", f)
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	jerusalem, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		jerusalem = time.UTC
	}
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(jerusalem).Format("02/01/2006 15:04")
		},
		"formatNumber":  FormatNumber,
		"formatPercent": FormatPercent,
		"optionLabel": func(opts domain.Options, code string) string {
			return opts.Label(code)
		},
		"activityIcon": func(t domain.ActivityType) string {
			switch t {
			case domain.ActivitySheetCreated:
				return "sheet"
			case domain.ActivitySubscriberAdded:
				return "add"
			case domain.ActivitySubscriberDeleted:
				return "remove"
			default:
				return "edit"
			}
		},
		"dict": func(pairs ...any) (map[string]any, error) {
			if len(pairs)%2 != 0 {
				return nil, fmt.Errorf("dict: odd number of arguments")
			}
			out := make(map[string]any, len(pairs)/2)
			for i := 0; i < len(pairs); i += 2 {
				key, ok := pairs[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
				}
				out[key] = pairs[i+1]
			}
			return out, nil
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData and a 200 status.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template into a buffer and writes it with
// status. Nothing is written when execution fails.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
