package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-pdf/fpdf"
)

const (
	FormatJSON = "json"
	FormatPDF  = "pdf"

	noModelLabel = "not selected"
)

type ExportResult struct {
	Path   string
	Status string
}

// Exporter writes chat transcripts to JSON or PDF files named
// chat_export_YYYYMMDD_HHMMSS.<ext>.
type Exporter struct {
	dir      string
	fontPath string
	logger   *log.Logger
	now      func() time.Time
}

// NewExporter uses dir as the default destination and fontPath, when set,
// as a UTF-8 TrueType font for PDFs.
func NewExporter(dir, fontPath string, logger *log.Logger) *Exporter {
	return &Exporter{
		dir:      dir,
		fontPath: fontPath,
		logger:   logger,
		now:      time.Now,
	}
}

// Export dispatches on format.
func (e *Exporter) Export(format string, turns []Turn, modelLabel, dest string) (ExportResult, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return e.ExportJSON(turns, modelLabel, dest)
	case FormatPDF:
		return e.ExportPDF(turns, modelLabel, dest)
	default:
		return ExportResult{}, fmt.Errorf("unsupported export format %q", format)
	}
}

type jsonExport struct {
	Model       string      `json:"model"`
	Timestamp   string      `json:"timestamp"`
	ChatHistory [][2]string `json:"chat_history"`
}

func (e *Exporter) ExportJSON(turns []Turn, modelLabel, dest string) (ExportResult, error) {
	now := e.now()
	path := e.resolvePath(dest, FormatJSON, now)

	body := jsonExport{
		Model:       labelOrDefault(modelLabel),
		Timestamp:   now.Format(time.RFC3339),
		ChatHistory: make([][2]string, 0),
	}
	for _, p := range PairTurns(turns) {
		body.ChatHistory = append(body.ChatHistory, [2]string{p.Question, p.Answer})
	}

	f, err := os.Create(path)
	if err != nil {
		return e.fail(FormatJSON, err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		f.Close()
		return e.fail(FormatJSON, err)
	}
	if err := f.Close(); err != nil {
		return e.fail(FormatJSON, err)
	}

	return e.done(path)
}

func (e *Exporter) ExportPDF(turns []Turn, modelLabel, dest string) (ExportResult, error) {
	now := e.now()
	path := e.resolvePath(dest, FormatPDF, now)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)

	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if e.fontPath != "" {
		pdf.AddUTF8Font("transcript", "", e.fontPath)
		pdf.AddUTF8Font("transcript", "B", e.fontPath)
		if pdf.Err() {
			e.logger.Warn("export font unusable, falling back to core font", "font", e.fontPath, "err", pdf.Error())
			pdf.ClearError()
		} else {
			family = "transcript"
			tr = func(s string) string { return s }
		}
	}

	pdf.AddPage()

	pdf.SetFont(family, "B", 18)
	pdf.CellFormat(0, 10, tr("Chat History"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont(family, "", 10)
	pdf.SetTextColor(128, 128, 128)
	meta := fmt.Sprintf("Model: %s\nExported: %s", labelOrDefault(modelLabel), now.Format("2006-01-02 15:04:05"))
	pdf.MultiCell(0, 5, tr(meta), "", "L", false)
	pdf.Ln(6)

	for _, p := range PairTurns(turns) {
		writePDFBlock(pdf, family, tr, "User:", p.Question, [3]int{0, 0, 200})
		writePDFBlock(pdf, family, tr, "Assistant:", p.Answer, [3]int{0, 128, 0})
		pdf.Ln(4)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return e.fail(FormatPDF, err)
	}
	return e.done(path)
}

func writePDFBlock(pdf *fpdf.Fpdf, family string, tr func(string) string, label, text string, color [3]int) {
	pdf.SetFont(family, "B", 12)
	pdf.SetTextColor(color[0], color[1], color[2])
	pdf.CellFormat(0, 7, tr(label), "", 1, "L", false, 0, "")

	pdf.SetFont(family, "", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5.5, tr(text), "", "L", false)
	pdf.Ln(3)
}

// resolvePath picks the output file. dest may be a file path with the
// right extension, or a directory; a missing directory falls back to the
// exporter's directory and then the working directory.
func (e *Exporter) resolvePath(dest, ext string, now time.Time) string {
	name := fmt.Sprintf("chat_export_%s.%s", now.Format("20060102_150405"), ext)

	if strings.EqualFold(filepath.Ext(dest), "."+ext) {
		return dest
	}
	for _, dir := range []string{dest, e.dir} {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return filepath.Join(dir, name)
		}
	}
	return name
}

func (e *Exporter) done(path string) (ExportResult, error) {
	e.logger.Info("chat exported", "path", path)
	return ExportResult{Path: path, Status: "Chat exported to " + path}, nil
}

func (e *Exporter) fail(format string, err error) (ExportResult, error) {
	err = fmt.Errorf("export %s: %w", strings.ToUpper(format), err)
	e.logger.Error("export failed", "err", err)
	return ExportResult{Status: err.Error()}, err
}

func labelOrDefault(label string) string {
	if strings.TrimSpace(label) == "" {
		return noModelLabel
	}
	return label
}
