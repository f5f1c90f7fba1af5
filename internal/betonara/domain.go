// Package betonara records concrete plant production and builds the
// production reports.
package betonara

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp-system/erp/internal/shared"
)

const dayLayout = "2006-01-02"

// maxReportDays bounds a report range.
const maxReportDays = 366

// ErrAlreadyRecorded is returned when the same form submission arrives twice.
var ErrAlreadyRecorded = errors.New("betonara: entry already recorded")

// ConcreteClasses are the strength classes accepted on entries, weakest first.
var ConcreteClasses = []string{
	"C8/10", "C12/15", "C16/20", "C20/25", "C25/30",
	"C30/37", "C35/45", "C40/50", "C45/55", "C50/60",
}

// Entry is one delivery of concrete produced at a plant.
type Entry struct {
	ID            int64
	CompanyID     int64
	CompanyName   string
	Plant         string
	ProducedOn    time.Time
	ConcreteClass string
	VolumeM3      float64
	Customer      string
	DeliveryNote  string
	CreatedBy     int64
	CreatedAt     time.Time
}

// EntryForm is the submitted production form. Key is the one-time token
// rendered into the form.
type EntryForm struct {
	CompanyID     int64   `validate:"required,gt=0"`
	Plant         string  `validate:"required,max=100"`
	ProducedOn    string  `validate:"required,datetime=2006-01-02"`
	ConcreteClass string  `validate:"required,oneof=C8/10 C12/15 C16/20 C20/25 C25/30 C30/37 C35/45 C40/50 C45/55 C50/60"`
	VolumeM3      float64 `validate:"gt=0,lte=1000"`
	Customer      string  `validate:"max=200"`
	DeliveryNote  string  `validate:"max=50"`
	Key           string
}

func (f EntryForm) entry() (Entry, error) {
	day, err := time.Parse(dayLayout, f.ProducedOn)
	if err != nil {
		return Entry{}, shared.Invalid("ProducedOn", "Unesite datum u formatu GGGG-MM-DD.")
	}
	return Entry{
		CompanyID:     f.CompanyID,
		Plant:         strings.TrimSpace(f.Plant),
		ProducedOn:    day,
		ConcreteClass: f.ConcreteClass,
		VolumeM3:      f.VolumeM3,
		Customer:      strings.TrimSpace(f.Customer),
		DeliveryNote:  strings.TrimSpace(f.DeliveryNote),
	}, nil
}

// ReportFilter narrows entries and totals. Zero CompanyID or empty Plant
// means all.
type ReportFilter struct {
	From      time.Time
	To        time.Time
	CompanyID int64
	Plant     string
}

// Query renders the filter back into URL parameters.
func (f ReportFilter) Query() string {
	q := "from=" + f.From.Format(dayLayout) + "&to=" + f.To.Format(dayLayout)
	if f.CompanyID > 0 {
		q += "&company_id=" + strconv.FormatInt(f.CompanyID, 10)
	}
	if f.Plant != "" {
		q += "&plant=" + url.QueryEscape(f.Plant)
	}
	return q
}

// ParseReportFilter reads from/to/company_id/plant. The range defaults to the
// current month up to today.
func ParseReportFilter(r *http.Request, now time.Time) (ReportFilter, error) {
	q := r.URL.Query()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	f := ReportFilter{
		From:  time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC),
		To:    today,
		Plant: strings.TrimSpace(q.Get("plant")),
	}
	if v := q.Get("from"); v != "" {
		day, err := time.Parse(dayLayout, v)
		if err != nil {
			return f, shared.Invalid("from", "Neispravan početni datum.")
		}
		f.From = day
	}
	if v := q.Get("to"); v != "" {
		day, err := time.Parse(dayLayout, v)
		if err != nil {
			return f, shared.Invalid("to", "Neispravan krajnji datum.")
		}
		f.To = day
	}
	if v := q.Get("company_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			return f, shared.Invalid("company_id", "Neispravna kompanija.")
		}
		f.CompanyID = id
	}
	if f.To.Before(f.From) {
		return f, shared.Invalid("to", "Krajnji datum je prije početnog.")
	}
	if f.To.Sub(f.From) > maxReportDays*24*time.Hour {
		return f, shared.Invalid("to", "Period izvještaja može biti najviše godinu dana.")
	}
	return f, nil
}

// DailyTotal is one row of the daily totals view.
type DailyTotal struct {
	Day         time.Time
	CompanyID   int64
	CompanyName string
	Plant       string
	VolumeM3    float64
	Entries     int
}

// ClassTotal sums production per concrete class.
type ClassTotal struct {
	ConcreteClass string
	VolumeM3      float64
	Entries       int
}

// Report is the assembled production report.
type Report struct {
	Filter       ReportFilter
	Daily        []DailyTotal
	Classes      []ClassTotal
	TotalVolume  float64
	TotalEntries int
}

// MonthSummary feeds the dashboard.
type MonthSummary struct {
	Month    time.Time
	VolumeM3 float64
	Latest   []Entry
}
