package report

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"

	apperrors "go-image-forensics/internal/errors"
	"go-image-forensics/internal/logger"
	"go-image-forensics/pkg/models"
)

const (
	pointsPerInch = 72.0
	pageMargin    = 72.0
	thumbnailName = "thumbnail"
)

// Store persists rendered reports. Save returns where the report was written.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, name string) ([]byte, error)
}

// Result describes one rendered report.
type Result struct {
	Name     string
	Location string
	Pages    int
	Document Document
	PDF      []byte
}

// Renderer produces PDF reports from verdicts.
type Renderer struct {
	store Store
	now   func() time.Time
	log   *logrus.Entry
}

// NewRenderer creates a renderer writing to store.
func NewRenderer(store Store) *Renderer {
	return &Renderer{store: store, now: time.Now, log: logger.Component("report")}
}

// WithClock replaces the generation timestamp source.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	return &Renderer{store: r.store, now: now, log: r.log}
}

// ReportName maps a source identifier to its report file name:
// "photo.v2.jpg" becomes "report_photo.v2.pdf".
func ReportName(sourceID string) string {
	base := path.Base(sourceID)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return "report_" + base + ".pdf"
}

// Render builds, renders and stores the report for v. It never modifies v.
func (r *Renderer) Render(ctx context.Context, v *models.VerdictRecord, image []byte) (*Result, error) {
	if v == nil {
		return nil, apperrors.NewRenderError("analysis results not found for this image", http.StatusNotFound, nil)
	}
	if len(image) == 0 {
		return nil, apperrors.NewRenderError("source image is missing", http.StatusNotFound, nil)
	}

	thumb, err := MakeThumbnail(image)
	if err != nil {
		return nil, apperrors.NewRenderError("source image could not be decoded", http.StatusUnprocessableEntity, err)
	}

	generatedAt := r.now()
	doc := BuildDocument(v, generatedAt)

	pdfBytes, err := RenderPDF(doc, thumb, generatedAt)
	if err != nil {
		return nil, apperrors.NewRenderError("pdf rendering failed", http.StatusInternalServerError, err)
	}

	pages, err := api.PageCount(bytes.NewReader(pdfBytes), nil)
	if err != nil {
		return nil, apperrors.NewRenderError("rendered pdf is invalid", http.StatusInternalServerError, err)
	}

	name := ReportName(v.SourceID)
	location, err := r.store.Save(ctx, name, pdfBytes)
	if err != nil {
		return nil, apperrors.NewRenderError("report could not be stored", http.StatusInternalServerError, err)
	}

	r.log.WithFields(logrus.Fields{
		"source_id": v.SourceID,
		"location":  location,
		"pages":     pages,
		"bytes":     len(pdfBytes),
	}).Info("Report rendered")

	return &Result{Name: name, Location: location, Pages: pages, Document: doc, PDF: pdfBytes}, nil
}

// Stored loads the report an earlier Render saved for sourceID. The returned
// Result carries no Document or Location.
func (r *Renderer) Stored(ctx context.Context, sourceID string) (*Result, error) {
	name := ReportName(sourceID)
	data, err := r.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("stored report %s is invalid: %w", name, err)
	}
	return &Result{Name: name, Pages: pages, PDF: data}, nil
}

// RenderPDF lays the document out on US Letter with one inch margins.
func RenderPDF(doc Document, thumb *Thumbnail, createdAt time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCreationDate(createdAt)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("go-image-forensics", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 30, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.Ln(18)

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 14, tr("Generated on: "+doc.GeneratedAt), "", 1, "L", false, 0, "")
	pdf.Ln(12)

	if thumb != nil {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(thumbnailName, opts, bytes.NewReader(thumb.PNG))
		pdf.ImageOptions(thumbnailName, pageMargin, pdf.GetY(), thumb.WidthPt, thumb.HeightPt, true, opts, 0, "")
		pdf.Ln(12)
	}

	drawTable(pdf, tr, doc.Metadata, 14, 12)
	drawTable(pdf, tr, doc.Forgery, 14, 12)
	drawTable(pdf, tr, doc.Regions, 12, 10)

	heading(pdf, tr, "Conclusion")
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 16, tr(doc.Conclusion), "", "L", false)

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func heading(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 22, tr(text), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

// drawTable renders a grey header row over beige body rows, centred
// between the margins.
func drawTable(pdf *fpdf.Fpdf, tr func(string) string, t Table, headerSize, bodySize float64) {
	heading(pdf, tr, t.Heading)

	widths := make([]float64, len(t.ColWidths))
	total := 0.0
	for i, w := range t.ColWidths {
		widths[i] = w * pointsPerInch
		total += widths[i]
	}
	pageWidth, _ := pdf.GetPageSize()
	left := pageMargin + (pageWidth-2*pageMargin-total)/2

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(1)

	pdf.SetFont("Helvetica", "B", headerSize)
	pdf.SetFillColor(128, 128, 128)
	pdf.SetTextColor(245, 245, 245)
	pdf.SetX(left)
	for i, h := range t.Header {
		pdf.CellFormat(widths[i], headerSize+10, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", bodySize)
	pdf.SetFillColor(245, 245, 220)
	pdf.SetTextColor(0, 0, 0)
	for _, row := range t.Rows {
		pdf.SetX(left)
		for i, cell := range row {
			pdf.CellFormat(widths[i], bodySize+8, tr(cell), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(12)
}
