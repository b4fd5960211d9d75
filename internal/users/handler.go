package users

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pelita-foundation/pelita/internal/authz"
	"github.com/pelita-foundation/pelita/internal/shared"
	"github.com/pelita-foundation/pelita/internal/view"
)

// Handler manages user management and per-user access endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Middleware
	catalog   authz.Store
	resolver  *authz.Resolver
	admin     *authz.Admin
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Middleware, catalog authz.Store, resolver *authz.Resolver, admin *authz.Admin) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		catalog:   catalog,
		resolver:  resolver,
		admin:     admin,
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{id}/access", h.showAccess)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermUsersEdit))
		r.Post("/{id}/roles", h.replaceRoles)
		r.Post("/{id}/overrides", h.saveOverrides)
	})
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", "Pengguna", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", "Pengguna", map[string]any{"Users": all}, http.StatusOK)
}

type roleOption struct {
	Role     authz.Role
	Assigned bool
}

type overrideRow struct {
	Permission  authz.Permission
	HasOverride bool
	Allowed     bool
}

type accessPageData struct {
	User      User
	Roles     []roleOption
	Overrides []overrideRow
	Effective []string
	Errors    formErrors
}

func (h *Handler) showAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, err := h.buildAccessPage(r, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("build access page", slog.Int64("user_id", userID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/access.html", "Akses Pengguna", data, http.StatusOK)
}

func (h *Handler) buildAccessPage(r *http.Request, userID int64) (accessPageData, error) {
	ctx := r.Context()
	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		return accessPageData{}, err
	}

	roles, err := h.catalog.ListRoles(ctx)
	if err != nil {
		return accessPageData{}, err
	}
	assigned, err := h.catalog.ActiveUserRoles(ctx, userID)
	if err != nil {
		return accessPageData{}, err
	}
	assignedSet := make(map[int64]struct{}, len(assigned))
	for _, id := range assigned {
		assignedSet[id] = struct{}{}
	}
	roleOptions := make([]roleOption, 0, len(roles))
	for _, role := range roles {
		_, has := assignedSet[role.ID]
		roleOptions = append(roleOptions, roleOption{Role: role, Assigned: has})
	}

	perms, err := h.catalog.ListActivePermissions(ctx)
	if err != nil {
		return accessPageData{}, err
	}
	overrides, err := h.catalog.UserOverrides(ctx, userID)
	if err != nil {
		return accessPageData{}, err
	}
	rows := make([]overrideRow, 0, len(perms))
	for _, perm := range perms {
		allowed, has := overrides[perm.ID]
		rows = append(rows, overrideRow{Permission: perm, HasOverride: has, Allowed: allowed})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Permission.Key < rows[j].Permission.Key })

	effectiveSet, err := h.resolver.EffectivePermissions(ctx, userID)
	if err != nil {
		return accessPageData{}, err
	}
	effective := make([]string, 0, len(effectiveSet))
	for key := range effectiveSet {
		effective = append(effective, key)
	}
	sort.Strings(effective)

	return accessPageData{User: user, Roles: roleOptions, Overrides: rows, Effective: effective}, nil
}

func (h *Handler) replaceRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	roleIDs := make([]int64, 0, len(r.PostForm["role_ids"]))
	for _, raw := range r.PostForm["role_ids"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		roleIDs = append(roleIDs, id)
	}

	_, err := h.admin.ReplaceUserRoles(r.Context(), h.actorID(r), userID, roleIDs)
	h.finishMutation(w, r, userID, err, "Peran pengguna diperbarui")
}

func (h *Handler) saveOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	perms, err := h.catalog.ListActivePermissions(ctx)
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	current, err := h.catalog.UserOverrides(ctx, userID)
	if err != nil {
		h.logger.Error("load overrides", slog.Int64("user_id", userID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	actor := h.actorID(r)
	var updates []authz.OverrideUpdate
	for _, perm := range perms {
		raw := r.PostFormValue(fmt.Sprintf("override_%d", perm.ID))
		switch {
		case raw == "" || raw == "inherit":
			if _, has := current[perm.ID]; has {
				if _, err := h.admin.ClearUserPermissionOverride(ctx, actor, userID, perm.ID); err != nil && !errors.Is(err, authz.ErrNotFound) {
					h.finishMutation(w, r, userID, err, "")
					return
				}
			}
		case shared.FlagKnown(raw):
			updates = append(updates, authz.OverrideUpdate{PermissionID: perm.ID, Allowed: shared.ParseFlag(raw)})
		default:
			h.redirectWithFlash(w, r, accessPath(userID), "error", "Nilai pengecualian tidak dikenali")
			return
		}
	}

	if len(updates) > 0 {
		if _, err := h.admin.SetUserPermissionOverrides(ctx, actor, userID, updates); err != nil {
			h.finishMutation(w, r, userID, err, "")
			return
		}
	}
	h.redirectWithFlash(w, r, accessPath(userID), "success", "Pengecualian disimpan")
}

func (h *Handler) finishMutation(w http.ResponseWriter, r *http.Request, userID int64, err error, success string) {
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, accessPath(userID), "success", success)
	case errors.Is(err, authz.ErrNotFound):
		http.NotFound(w, r)
	case authz.IsValidation(err):
		h.redirectWithFlash(w, r, accessPath(userID), "error", err.Error())
	default:
		h.logger.Error("access mutation failed", slog.Int64("user_id", userID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
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

func accessPath(userID int64) string {
	return fmt.Sprintf("/settings/users/%d/access", userID)
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
