package rbac

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/feedflow/feedflow/internal/platform/httpx"
	"github.com/feedflow/feedflow/internal/shared"
)

// PermissionsHandler exposes the role capability table.
type PermissionsHandler struct{}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

var scopeGroups = []struct {
	name   string
	scopes func() []string
}{
	{"core", shared.CoreScopes},
	{"sales", shared.SalesScopes},
	{"delivery", shared.DeliveryScopes},
}

type roleCapabilities struct {
	Role        shared.Role         `json:"role"`
	Permissions []string            `json:"permissions"`
	Groups      map[string][]string `json:"groups"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	out := make([]roleCapabilities, 0, len(shared.Roles()))
	for _, role := range shared.Roles() {
		perms := shared.Permissions(role)
		sort.Strings(perms)
		out = append(out, roleCapabilities{Role: role, Permissions: perms, Groups: groupsOf(role)})
	}
	httpx.JSON(w, http.StatusOK, out)
}

// groupsOf buckets the role's permissions by scope group. Groups the role
// holds nothing in are omitted.
func groupsOf(role shared.Role) map[string][]string {
	groups := make(map[string][]string, len(scopeGroups))
	for _, g := range scopeGroups {
		for _, perm := range g.scopes() {
			if shared.Can(role, perm) {
				groups[g.name] = append(groups[g.name], perm)
			}
		}
	}
	return groups
}
