package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var noteTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": func(s string) template.HTML {
			return template.HTML(s)
		},
	}

	contents, err := templateFS.ReadFile("templates/note.html")
	if err != nil {
		noteTemplate = template.Must(template.New("note").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	noteTemplate = template.Must(template.New("note").Funcs(funcMap).Parse(string(contents)))
}

// RenderNoteHTML renders the full standalone HTML page for a note.
func RenderNoteHTML(data NoteData) (string, error) {
	var buf bytes.Buffer
	if err := noteTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template cannot be read.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div>{{.ContentHTML | safeHTML}}</div>
</body>
</html>`
