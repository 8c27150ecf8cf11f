// Package export renders notes into downloadable HTML and PDF files.
package export

import (
	"errors"
	"time"
)

// Format is the export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// NoteData is everything the export templates need about a note. The caller
// resolves visibility before handing the note over; export does no access
// checks of its own.
type NoteData struct {
	Title        string
	CategoryName string
	Author       string
	UpdatedAt    time.Time
	ContentHTML  string
}

// Result is the finished export artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless browser needed for PDF
// export is not installed.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
