// Package templates handles HTML template rendering for Datastar SSE responses
// and the viewer page.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed fragments/*.html pages/*.html
var builtin embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	// domID turns an attribute name into something usable in an id.
	"domID": func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			}
			return '-'
		}, strings.TrimSpace(s))
	},
}

// Renderer manages HTML fragment and page templates.
type Renderer struct {
	templates *template.Template
}

// New creates a renderer. With an empty dir the embedded templates are
// used; otherwise dir must hold fragments/ and pages/ subdirectories.
func New(dir string) (*Renderer, error) {
	tmpl, err := parse(dir)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(dir string) (*template.Template, error) {
	var fsys fs.FS = builtin
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	return template.New("").Funcs(funcMap).ParseFS(fsys, "fragments/*.html", "pages/*.html")
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.Execute(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Execute renders a named template to w.
func (r *Renderer) Execute(w io.Writer, name string, data any) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// Dir returns dir when it holds a fragments directory, else "".
func Dir(webDir string) string {
	if webDir == "" {
		return ""
	}
	dir := filepath.Join(webDir, "templates")
	if st, err := os.Stat(filepath.Join(dir, "fragments")); err == nil && st.IsDir() {
		return dir
	}
	return ""
}
