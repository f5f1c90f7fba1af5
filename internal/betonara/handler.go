package betonara

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/erp-system/erp/internal/companies"
	"github.com/erp-system/erp/internal/gate"
	"github.com/erp-system/erp/internal/rbac"
	"github.com/erp-system/erp/internal/shared"
	"github.com/erp-system/erp/internal/view"
)

// Handler serves /betonara. Viewing is guarded by the route catalog; writes
// and exports carry their own permission guards.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	renderer  *view.Renderer
	gate      *gate.Gate
	pdf       *PDFRenderer
	names     view.SystemNamer
	validator *validator.Validate
}

// NewHandler constructs the handler. pdf may be nil when no converter is
// configured; PDF export then answers 503.
func NewHandler(logger *slog.Logger, service *Service, renderer *view.Renderer, g *gate.Gate, pdf *PDFRenderer, names view.SystemNamer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, gate: g, pdf: pdf, names: names, validator: validator.New()}
}

// MountRoutes registers Betonara routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/production", h.listProduction)
	r.With(h.gate.Require(rbac.PermBetonaraManage)).Post("/production", h.recordEntry)
	r.Get("/reports", h.showReport)
	r.Group(func(r chi.Router) {
		r.Use(h.gate.Require(rbac.PermBetonaraExport))
		r.Get("/reports/export.csv", h.exportCSV)
		r.Get("/reports/export.pdf", h.exportPDF)
	})
}

type productionPageData struct {
	Entries   []Entry
	Filter    ReportFilter
	Page      shared.Page
	Companies []companies.Company
	Classes   []string
	Form      EntryForm
	Errors    shared.FormErrors
}

type reportPageData struct {
	Report    Report
	Filter    ReportFilter
	Companies []companies.Company
	Plants    []string
	Errors    shared.FormErrors
}

func (h *Handler) listProduction(w http.ResponseWriter, r *http.Request) {
	h.renderProduction(w, r, EntryForm{ProducedOn: h.service.Now().Format(dayLayout)}, shared.FormErrors{}, http.StatusOK)
}

func (h *Handler) recordEntry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := EntryForm{
		Plant:         strings.TrimSpace(r.PostFormValue("plant")),
		ProducedOn:    strings.TrimSpace(r.PostFormValue("produced_on")),
		ConcreteClass: strings.TrimSpace(r.PostFormValue("concrete_class")),
		Customer:      strings.TrimSpace(r.PostFormValue("customer")),
		DeliveryNote:  strings.TrimSpace(r.PostFormValue("delivery_note")),
		Key:           r.PostFormValue("key"),
	}
	errs := shared.FormErrors{}
	if id, err := strconv.ParseInt(r.PostFormValue("company_id"), 10, 64); err == nil {
		form.CompanyID = id
	}
	if v := strings.ReplaceAll(strings.TrimSpace(r.PostFormValue("volume_m3")), ",", "."); v != "" {
		volume, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs["VolumeM3"] = "Unesite količinu kao broj."
		}
		form.VolumeM3 = volume
	}
	for field, msg := range shared.FieldErrors(h.validator.Struct(form)) {
		if _, ok := errs[field]; !ok {
			errs[field] = msg
		}
	}
	if len(errs) > 0 {
		h.renderProduction(w, r, form, errs, http.StatusBadRequest)
		return
	}

	entry, err := h.service.RecordEntry(r.Context(), gate.UserIDFromContext(r.Context()), form)
	if err != nil {
		var verr *shared.ValidationError
		switch {
		case errors.Is(err, ErrAlreadyRecorded):
			h.renderer.RedirectWithFlash(w, r, "/betonara/production", "info", "Unos je već sačuvan.")
		case errors.As(err, &verr):
			h.renderProduction(w, r, form, shared.FormErrors{verr.Field: verr.Message}, http.StatusBadRequest)
		default:
			h.renderer.Failure(w, r, err)
		}
		return
	}
	h.logger.Info("betonara entry recorded", slog.Int64("id", entry.ID), slog.Int64("company_id", entry.CompanyID), slog.String("plant", entry.Plant))
	h.renderer.RedirectWithFlash(w, r, "/betonara/production", "success", "Proizvodnja je evidentirana.")
}

func (h *Handler) renderProduction(w http.ResponseWriter, r *http.Request, form EntryForm, errs shared.FormErrors, status int) {
	ctx := r.Context()
	filter, ferr := ParseReportFilter(r, h.service.Now())
	if ferr != nil {
		errs["filter"] = shared.UserSafeMessage(ferr)
		status = http.StatusBadRequest
	}
	page := shared.ParseListFilters(r)
	entries, total, err := h.service.ListEntries(ctx, filter, page)
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	list, err := h.service.Companies(ctx)
	if err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	form.Key = uuid.NewString()
	h.renderer.Render(w, r, "pages/betonara/production.html", "Proizvodnja", productionPageData{
		Entries:   entries,
		Filter:    filter,
		Page:      page.Paginate(total),
		Companies: list,
		Classes:   ConcreteClasses,
		Form:      form,
		Errors:    errs,
	}, status)
}

func (h *Handler) showReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := reportPageData{Errors: shared.FormErrors{}}
	status := http.StatusOK
	filter, err := ParseReportFilter(r, h.service.Now())
	data.Filter = filter
	if err != nil {
		data.Errors["filter"] = shared.UserSafeMessage(err)
		status = http.StatusBadRequest
	} else {
		report, err := h.service.Report(ctx, filter)
		if err != nil {
			h.renderer.Failure(w, r, err)
			return
		}
		data.Report = report
	}
	if data.Companies, err = h.service.Companies(ctx); err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	if data.Plants, err = h.service.Plants(ctx); err != nil {
		h.renderer.Failure(w, r, err)
		return
	}
	h.renderer.Render(w, r, "pages/betonara/reports.html", "Izvještaji", data, status)
}

func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (Report, bool) {
	filter, err := ParseReportFilter(r, h.service.Now())
	if err != nil {
		http.Error(w, shared.UserSafeMessage(err), http.StatusBadRequest)
		return Report{}, false
	}
	report, err := h.service.Report(r.Context(), filter)
	if err != nil {
		h.renderer.Failure(w, r, err)
		return Report{}, false
	}
	return report, true
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+Filename(report, "csv")+`"`)
	if err := WriteCSV(w, report); err != nil {
		h.logger.Error("export csv", slog.Any("error", err))
	}
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		http.Error(w, "PDF izvoz nije konfigurisan.", http.StatusServiceUnavailable)
		return
	}
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	name := ""
	if h.names != nil {
		var err error
		if name, err = h.names.SystemName(r.Context()); err != nil {
			h.renderer.Failure(w, r, err)
			return
		}
	}
	pdf, err := h.pdf.Render(r.Context(), name, report, h.service.Now())
	if err != nil {
		h.logger.Error("render betonara pdf", slog.Any("error", err))
		http.Error(w, "Generisanje PDF dokumenta nije uspjelo.", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+Filename(report, "pdf")+`"`)
	_, _ = w.Write(pdf)
}
