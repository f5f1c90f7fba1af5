package betonara

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/erp-system/erp/web"
)

// WriteCSV writes the daily totals followed by the per-class totals.
func WriteCSV(w io.Writer, report Report) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	rows := [][]string{{"Datum", "Kompanija", "Pogon", "Količina (m3)", "Broj otpremnica"}}
	for _, d := range report.Daily {
		rows = append(rows, []string{
			d.Day.Format(dayLayout),
			d.CompanyName,
			d.Plant,
			formatVolume(d.VolumeM3),
			strconv.Itoa(d.Entries),
		})
	}
	rows = append(rows,
		[]string{"Ukupno", "", "", formatVolume(report.TotalVolume), strconv.Itoa(report.TotalEntries)},
		[]string{},
		[]string{"Klasa betona", "Količina (m3)", "Broj otpremnica"},
	)
	for _, c := range report.Classes {
		rows = append(rows, []string{c.ConcreteClass, formatVolume(c.VolumeM3), strconv.Itoa(c.Entries)})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Filename is the download name for an export of report.
func Filename(report Report, ext string) string {
	return "betonara_" + report.Filter.From.Format("20060102") + "_" + report.Filter.To.Format("20060102") + "." + ext
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// PDFClient exposes the subset of the report client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// PDFRenderer turns a report into a PDF through the HTML converter.
type PDFRenderer struct {
	tpl    *template.Template
	client PDFClient
}

// pdfDocument is the template input.
type pdfDocument struct {
	SystemName  string
	GeneratedAt time.Time
	Report      Report
}

// NewPDFRenderer parses the report template and wires the PDF client.
func NewPDFRenderer(client PDFClient) (*PDFRenderer, error) {
	if client == nil {
		return nil, fmt.Errorf("betonara renderer: pdf client required")
	}
	funcMap := template.FuncMap{
		"formatDay": func(t time.Time) string { return t.Format("02.01.2006") },
		"formatQty": formatVolume,
		"formatInt": strconv.Itoa,
	}
	tpl, err := template.New("betonara.html").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/betonara.html")
	if err != nil {
		return nil, err
	}
	return &PDFRenderer{tpl: tpl, client: client}, nil
}

// Render executes the template and converts the HTML to PDF bytes.
func (r *PDFRenderer) Render(ctx context.Context, systemName string, report Report, at time.Time) ([]byte, error) {
	if r == nil || r.tpl == nil || r.client == nil {
		return nil, fmt.Errorf("betonara renderer not initialised")
	}
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, pdfDocument{SystemName: systemName, GeneratedAt: at, Report: report}); err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, buf.String())
}
