package web

import (
	"embed"
	"html/template"
	"io/fs"
	"sync"
	"time"
)

//go:embed *.html app.css app.js
var content embed.FS

var (
	tmpl *template.Template
	once sync.Once
)

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
}

// Templates returns the parsed HTML templates for the UI, embedded at build time.
// layout.html renders the page shell and includes dashboard.html via the
// "content" template.
func Templates() *template.Template {
	once.Do(func() {
		tmpl = template.Must(template.New("").Funcs(funcs).ParseFS(content, "*.html"))
	})
	return tmpl
}

// StaticFS exposes embedded static assets such as CSS.
func StaticFS() fs.FS {
	return content
}
