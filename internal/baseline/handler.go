package baseline

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pelita-foundation/pelita/internal/authz"
	"github.com/pelita-foundation/pelita/internal/shared"
	"github.com/pelita-foundation/pelita/internal/view"
)

// Handler manages baseline intake endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Middleware
	resolver  *authz.Resolver
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Middleware, resolver *authz.Resolver) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guard: guard, resolver: resolver}
}

// MountRoutes registers baseline routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermBaselineView))
		r.Get("/", h.list)
		r.Get("/export/csv", h.exportCSV)
		r.Get("/{id}", h.detail)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermBaselineCreate))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermBaselineUpdate))
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}", h.update)
		r.Post("/{id}/submit", h.submit)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermBaselineDelete))
		r.Post("/{id}/delete", h.remove)
	})
}

type formErrors map[string]string

type listPageData struct {
	Records    []Record
	Pagination shared.Pagination
	CanCreate  bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	filter := ListFilter{
		Status:  Status(r.URL.Query().Get("status")),
		Page:    page,
		PerPage: 20,
	}
	records, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list baseline records", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data := listPageData{
		Records:    records,
		Pagination: pagination,
		CanCreate:  h.resolver.Resolve(r.Context(), h.actorID(r), shared.PermBaselineCreate),
	}
	h.render(w, r, "pages/baseline/list.html", "Data Baseline", data, http.StatusOK)
}

type detailPageData struct {
	Record    Record
	History   []shared.ApprovalLog
	CanUpdate bool
	CanDelete bool
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "load baseline record")
		return
	}
	history, err := h.service.History(r.Context(), id)
	if err != nil {
		h.logger.Warn("load approval history", slog.Any("error", err))
	}
	actor := h.actorID(r)
	data := detailPageData{
		Record:    rec,
		History:   history,
		CanUpdate: h.resolver.Resolve(r.Context(), actor, shared.PermBaselineUpdate),
		CanDelete: h.resolver.Resolve(r.Context(), actor, shared.PermBaselineDelete),
	}
	h.render(w, r, "pages/baseline/detail.html", "Detail Baseline", data, http.StatusOK)
}

type formPageData struct {
	Record Record
	Action string
	Errors formErrors
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	data := formPageData{Record: Record{HouseholdSize: 1}, Action: "/baseline"}
	h.render(w, r, "pages/baseline/form.html", "Tambah Baseline", data, http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "load baseline record")
		return
	}
	data := formPageData{Record: rec, Action: "/baseline/" + rec.ID.String()}
	h.render(w, r, "pages/baseline/form.html", "Ubah Baseline", data, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	input, formErr := parseInput(r)
	if formErr != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	rec, err := h.service.Create(r.Context(), h.actorID(r), input)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			data := formPageData{
				Record: recordFromInput(input),
				Action: "/baseline",
				Errors: formErrors{"general": "Periksa kembali isian formulir"},
			}
			h.render(w, r, "pages/baseline/form.html", "Tambah Baseline", data, http.StatusBadRequest)
			return
		}
		h.handleError(w, r, err, "create baseline record")
		return
	}
	h.redirectWithFlash(w, r, "/baseline/"+rec.ID.String(), "success", "Data baseline tersimpan")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	input, formErr := parseInput(r)
	if formErr != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	rec, err := h.service.Update(r.Context(), h.actorID(r), id, input)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			existing := recordFromInput(input)
			existing.ID = id
			data := formPageData{
				Record: existing,
				Action: "/baseline/" + id.String(),
				Errors: formErrors{"general": "Periksa kembali isian formulir"},
			}
			h.render(w, r, "pages/baseline/form.html", "Ubah Baseline", data, http.StatusBadRequest)
			return
		}
		h.handleError(w, r, err, "update baseline record")
		return
	}
	h.redirectWithFlash(w, r, "/baseline/"+rec.ID.String(), "success", "Perubahan tersimpan")
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Data diajukan untuk ditinjau", func(id uuid.UUID) error {
		return h.service.Submit(r.Context(), h.actorID(r), id)
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Data disetujui", func(id uuid.UUID) error {
		return h.service.Approve(r.Context(), h.actorID(r), id)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	note := r.PostFormValue("note")
	h.transition(w, r, "Data ditolak", func(id uuid.UUID) error {
		return h.service.Reject(r.Context(), h.actorID(r), id, note)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, success string, fn func(uuid.UUID) error) {
	id, ok := pathUUID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := fn(id); err != nil {
		if errors.Is(err, shared.ErrInvalidTransition) {
			h.redirectWithFlash(w, r, "/baseline/"+id.String(), "error", shared.UserSafeMessage(err))
			return
		}
		h.handleError(w, r, err, "baseline transition")
		return
	}
	h.redirectWithFlash(w, r, "/baseline/"+id.String(), "success", success)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), h.actorID(r), id); err != nil {
		h.handleError(w, r, err, "delete baseline record")
		return
	}
	h.redirectWithFlash(w, r, "/baseline", "success", "Data dihapus")
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ExportAll(r.Context())
	if err != nil {
		h.handleError(w, r, err, "export baseline records")
		return
	}
	filename := fmt.Sprintf("baseline-%s.csv", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := WriteRecordsCSV(w, records); err != nil {
		h.logger.Error("write baseline csv", slog.Any("error", err))
	}
}

func parseInput(r *http.Request) (Input, error) {
	if err := r.ParseForm(); err != nil {
		return Input{}, err
	}
	householdSize, _ := strconv.Atoi(r.PostFormValue("household_size"))
	monthlyIncome, _ := strconv.ParseInt(r.PostFormValue("monthly_income"), 10, 64)
	return Input{
		BeneficiaryName: r.PostFormValue("beneficiary_name"),
		NIK:             r.PostFormValue("nik"),
		Village:         r.PostFormValue("village"),
		HouseholdSize:   householdSize,
		MonthlyIncome:   monthlyIncome,
		Notes:           r.PostFormValue("notes"),
	}, nil
}

func recordFromInput(input Input) Record {
	return Record{
		BeneficiaryName: input.BeneficiaryName,
		NIK:             input.NIK,
		Village:         input.Village,
		HouseholdSize:   input.HouseholdSize,
		MonthlyIncome:   input.MonthlyIncome,
		Notes:           input.Notes,
		Status:          StatusDraft,
	}
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) actorID(r *http.Request) int64 {
	return shared.ActorIDFromContext(r.Context())
}

func pathUUID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
