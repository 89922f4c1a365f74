package frontend

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"
)

// renderer handles template rendering.
type renderer struct {
	baseTemplate *template.Template // Base template with nav, components
	templatesFS  fs.FS              // Embedded filesystem for page templates
	config       *Config
	funcs        template.FuncMap
}

// newRenderer creates a new renderer.
func newRenderer(baseTemplate *template.Template, templatesFS fs.FS, cfg *Config) *renderer {
	return &renderer{
		baseTemplate: baseTemplate,
		templatesFS:  templatesFS,
		config:       cfg,
		funcs:        templateFuncs(),
	}
}

// PageData contains common data for all pages.
type PageData struct {
	Title           string
	BasePath        string
	CurrentPath     string
	RefreshInterval int // in seconds
	Data            any
}

// render renders a template with the given data.
// It clones the base template and parses the page-specific template into it,
// avoiding conflicts between "content" blocks in different pages.
func (r *renderer) render(w http.ResponseWriter, req *http.Request, name, title string, data any) error {
	pageData := PageData{
		Title:           title,
		BasePath:        r.config.BasePath,
		CurrentPath:     req.URL.Path,
		RefreshInterval: int(r.config.RefreshInterval.Seconds()),
		Data:            data,
	}

	// Clone the base template to avoid conflicts between page "content" blocks
	tmpl, err := r.baseTemplate.Clone()
	if err != nil {
		return fmt.Errorf("clone template: %w", err)
	}

	// Parse the page-specific template into the clone
	pageTemplatePath := "templates/" + name
	_, err = tmpl.ParseFS(r.templatesFS, pageTemplatePath)
	if err != nil {
		return fmt.Errorf("parse page template %s: %w", pageTemplatePath, err)
	}

	// Buffer so a failing template still lets the caller write an error.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", pageData); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

// Template helper functions

func formatDuration(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	if *d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if *d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if *d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

func formatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func truncate(n int, v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprintf("%v", v)
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// usageColor buckets context usage against the default 75% trigger.
func usageColor(percent float64) string {
	switch {
	case percent >= 75:
		return "bg-red-100 text-red-800"
	case percent >= 50:
		return "bg-yellow-100 text-yellow-800"
	default:
		return "bg-green-100 text-green-800"
	}
}

func reasonColor(reason string) string {
	switch reason {
	case "triggered":
		return "bg-red-100 text-red-800"
	case "cooldown":
		return "bg-blue-100 text-blue-800"
	case "too_few_messages":
		return "bg-yellow-100 text-yellow-800"
	default:
		return "bg-gray-100 text-gray-800"
	}
}

func add(a, b int) int {
	return a + b
}

func sub(a, b int) int {
	return a - b
}

func mulFloat(a float64, b int) float64 {
	return a * float64(b)
}
