package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pelita-foundation/pelita/internal/authz"
	"github.com/pelita-foundation/pelita/internal/shared"
	"github.com/pelita-foundation/pelita/internal/view"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Middleware
	catalog   authz.Store
	admin     *authz.Admin
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Middleware, catalog authz.Store, admin *authz.Admin) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		catalog:   catalog,
		admin:     admin,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{id}/permissions", h.showMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermRolesEdit))
		r.Get("/new", h.showCreateForm)
		r.Post("/", h.createRole)
		r.Get("/{id}/edit", h.showEditForm)
		r.Post("/{id}", h.updateRole)
		r.Post("/{id}/permissions", h.saveMatrix)
		r.Post("/{id}/deactivate", h.deactivateRole)
	})
}

type formErrors map[string]string

type roleForm struct {
	Name        string `validate:"required,min=3,max=100"`
	Description string `validate:"max=500"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	all, err := h.catalog.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		h.render(w, r, "pages/roles/list.html", "Peran", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/list.html", "Peran", map[string]any{"Roles": all}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/roles/form.html", "Peran Baru", map[string]any{"Form": roleForm{}, "Errors": formErrors{}, "Action": "/settings/roles"}, http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	role, err := h.catalog.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load role", slog.Int64("role_id", roleID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	form := roleForm{Name: role.Name, Description: role.Description}
	h.render(w, r, "pages/roles/form.html", "Ubah Peran", map[string]any{"Form": form, "Errors": formErrors{}, "Action": fmt.Sprintf("/settings/roles/%d", roleID)}, http.StatusOK)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := roleForm{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
	}
	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = fieldErr.Error()
		}
	}
	if len(errs) == 0 {
		role, err := h.service.CreateRole(r.Context(), form.Name, form.Description)
		switch {
		case err == nil:
			h.redirectWithFlash(w, r, fmt.Sprintf("/settings/roles/%d/permissions", role.ID), "success", "Peran dibuat")
			return
		case errors.Is(err, ErrNameTaken):
			errs["Name"] = "Nama peran sudah dipakai"
		case errors.Is(err, ErrNameRequired):
			errs["Name"] = "Nama peran wajib diisi"
		default:
			h.logger.Error("create role failed", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
	}
	h.render(w, r, "pages/roles/form.html", "Peran Baru", map[string]any{"Form": form, "Errors": errs, "Action": "/settings/roles"}, http.StatusBadRequest)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := roleForm{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
	}
	errs := formErrors{}
	if err := h.validator.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errs[fieldErr.Field()] = fieldErr.Error()
		}
	}
	if len(errs) == 0 {
		_, err := h.service.UpdateRole(r.Context(), roleID, form.Name, form.Description)
		switch {
		case err == nil:
			h.redirectWithFlash(w, r, "/settings/roles", "success", "Peran diperbarui")
			return
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
			return
		case errors.Is(err, ErrNameTaken):
			errs["Name"] = "Nama peran sudah dipakai"
		case errors.Is(err, ErrNameRequired):
			errs["Name"] = "Nama peran wajib diisi"
		default:
			h.logger.Error("update role failed", slog.Int64("role_id", roleID), slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err)
		}
	}
	h.render(w, r, "pages/roles/form.html", "Ubah Peran", map[string]any{"Form": form, "Errors": errs, "Action": fmt.Sprintf("/settings/roles/%d", roleID)}, http.StatusBadRequest)
}

type permRow struct {
	Permission authz.Permission
	Granted    bool
}

type pageMatrix struct {
	Page        authz.Page
	Permissions []permRow
}

type matrixPageData struct {
	Role    authz.Role
	Catalog []pageMatrix
	Errors  formErrors
}

func (h *Handler) showMatrix(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, err := h.buildMatrix(r, roleID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("build role matrix", slog.Int64("role_id", roleID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/roles/matrix.html", "Hak Akses Peran", data, http.StatusOK)
}

func (h *Handler) buildMatrix(r *http.Request, roleID int64) (matrixPageData, error) {
	ctx := r.Context()
	role, err := h.catalog.GetRole(ctx, roleID)
	if err != nil {
		return matrixPageData{}, err
	}
	granted, err := h.catalog.RoleGrantSet(ctx, roleID)
	if err != nil {
		return matrixPageData{}, err
	}
	pages, err := h.catalog.ListPages(ctx)
	if err != nil {
		return matrixPageData{}, err
	}
	catalog := make([]pageMatrix, 0, len(pages))
	for _, page := range pages {
		perms, err := h.catalog.ListPagePermissions(ctx, page.ID)
		if err != nil {
			return matrixPageData{}, err
		}
		rows := make([]permRow, 0, len(perms))
		for _, perm := range perms {
			_, has := granted[perm.ID]
			rows = append(rows, permRow{Permission: perm, Granted: has})
		}
		catalog = append(catalog, pageMatrix{Page: page, Permissions: rows})
	}
	return matrixPageData{Role: role, Catalog: catalog}, nil
}

func (h *Handler) saveMatrix(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	perms, err := h.catalog.ListActivePermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var grants []authz.Grant
	for _, perm := range perms {
		raw := r.PostFormValue(fmt.Sprintf("perm_%d", perm.ID))
		if raw == "" {
			continue
		}
		grants = append(grants, authz.Grant{PermissionID: perm.ID, Allowed: shared.ParseFlag(raw)})
	}

	_, err = h.admin.ReplaceRolePermissions(r.Context(), h.actorID(r), roleID, grants)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, fmt.Sprintf("/settings/roles/%d/permissions", roleID), "success", "Matriks hak akses disimpan")
	case errors.Is(err, authz.ErrNotFound):
		http.NotFound(w, r)
	case authz.IsValidation(err):
		h.redirectWithFlash(w, r, fmt.Sprintf("/settings/roles/%d/permissions", roleID), "error", err.Error())
	default:
		h.logger.Error("replace role permissions failed", slog.Int64("role_id", roleID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.DeactivateRole(r.Context(), roleID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("deactivate role failed", slog.Int64("role_id", roleID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.redirectWithFlash(w, r, "/settings/roles", "success", "Peran dinonaktifkan")
}

func (h *Handler) actorID(r *http.Request) int64 {
	return shared.ActorIDFromContext(r.Context())
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
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
