package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pelita-foundation/pelita/internal/shared"
	"github.com/pelita-foundation/pelita/internal/view"
)

// PermissionsHandler serves the read-only permission catalog page in the
// settings area.
type PermissionsHandler struct {
	logger    *slog.Logger
	store     Store
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, store Store, templates *view.Engine, csrf *shared.CSRFManager, guard Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, store: store, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers permission catalog routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermPermissionsView))
		r.Get("/", h.listCatalog)
	})
}

// PageWithPermissions pairs a page with its active permissions for the
// catalog listing.
type PageWithPermissions struct {
	Page        Page
	Permissions []Permission
}

func (h *PermissionsHandler) listCatalog(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.ListPages(r.Context())
	if err != nil {
		h.render(w, r, map[string]any{"Errors": map[string]string{"general": err.Error()}}, http.StatusInternalServerError)
		return
	}
	catalog := make([]PageWithPermissions, 0, len(pages))
	for _, page := range pages {
		perms, err := h.store.ListPagePermissions(r.Context(), page.ID)
		if err != nil {
			h.render(w, r, map[string]any{"Errors": map[string]string{"general": err.Error()}}, http.StatusInternalServerError)
			return
		}
		catalog = append(catalog, PageWithPermissions{Page: page, Permissions: perms})
	}
	h.render(w, r, map[string]any{"Catalog": catalog}, http.StatusOK)
}

func (h *PermissionsHandler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Hak Akses", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/permissions/list.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
