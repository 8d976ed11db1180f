package shared

import (
	"context"
	"fmt"
)

// Actor is the authenticated identity performing a request.
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Require returns ErrForbidden unless the actor's role carries perm.
func (a Actor) Require(perm string) error {
	if a.ID == 0 || !Can(a.Role, perm) {
		return fmt.Errorf("%w: %s may not %s", ErrForbidden, a.Role, perm)
	}
	return nil
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.ID != 0
}

// WarehouseStaff names the employees responsible for a warehouse.
type WarehouseStaff struct {
	WarehouseID  int64 `json:"warehouse_id"`
	PlantHeadID  int64 `json:"plant_head_id"`
	AccountantID int64 `json:"accountant_id"`
}
