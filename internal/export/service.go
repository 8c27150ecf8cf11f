package export

import "fmt"

// Service turns a note into an export artifact.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the note page and packages it in the requested format.
func (s *Service) Export(note NoteData, format Format) (*Result, error) {
	html, err := RenderNoteHTML(note)
	if err != nil {
		return nil, fmt.Errorf("render note page: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(note.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, note.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
