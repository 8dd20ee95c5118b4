package kanban

import (
	"context"
	"crm/source/schemas"
	"crm/source/utils"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Scope is what a user may see on the board. A nil set is unrestricted; an
// empty non-nil set allows nothing.
type Scope struct {
	Responsibles []bson.ObjectID
	Partners     []bson.ObjectID
}

type ScopeResolver interface {
	Resolve(ctx context.Context, userID int) (Scope, error)
}

type ScopeResolverFunc func(ctx context.Context, userID int) (Scope, error)

func (f ScopeResolverFunc) Resolve(ctx context.Context, userID int) (Scope, error) {
	return f(ctx, userID)
}

// Unrestricted resolves every user to an unrestricted scope.
var Unrestricted = ScopeResolverFunc(func(ctx context.Context, userID int) (Scope, error) {
	return Scope{}, nil
})

// MySQLScopeResolver reads scopes from the Laravel user_permissions table.
// kanban_responsibles and kanban_partners hold JSON arrays of ObjectID hex
// strings; NULL means unrestricted.
type MySQLScopeResolver struct {
	db *sql.DB
}

func NewMySQLScopeResolver(db *sql.DB) *MySQLScopeResolver {
	return &MySQLScopeResolver{db: db}
}

const scopeQuery = `SELECT kanban_responsibles, kanban_partners FROM user_permissions WHERE user_id = ? LIMIT 1`

func (r *MySQLScopeResolver) Resolve(ctx context.Context, userID int) (Scope, error) {
	var responsibles, partners sql.NullString
	err := r.db.QueryRowContext(ctx, scopeQuery, userID).Scan(&responsibles, &partners)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[Kanban] Usuário %d sem permissões de kanban cadastradas", userID)
		return Scope{Responsibles: []bson.ObjectID{}, Partners: []bson.ObjectID{}}, nil
	}
	if err != nil {
		return Scope{}, utils.Transient(utils.CANNOT_RESOLVE_PERMISSION_SCOPE, err)
	}

	scope := Scope{}
	if scope.Responsibles, err = parseScopeColumn(responsibles); err != nil {
		return Scope{}, fmt.Errorf("user %d kanban_responsibles: %w", userID, err)
	}
	if scope.Partners, err = parseScopeColumn(partners); err != nil {
		return Scope{}, fmt.Errorf("user %d kanban_partners: %w", userID, err)
	}
	return scope, nil
}

func parseScopeColumn(column sql.NullString) ([]bson.ObjectID, error) {
	if !column.Valid {
		return nil, nil
	}

	hexIDs := []string{}
	if err := json.Unmarshal([]byte(column.String), &hexIDs); err != nil {
		return nil, err
	}

	ids := make([]bson.ObjectID, 0, len(hexIDs))
	for _, hexID := range hexIDs {
		id, err := bson.ObjectIDFromHex(hexID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// applyScope narrows filters to scope. Requested ids outside the scope are
// forbidden; an empty request defaults to the whole scope. visible is false
// when the scope leaves nothing to show.
func applyScope(filters schemas.StageFilters, scope Scope) (scoped schemas.StageFilters, visible bool, err error) {
	scoped = filters

	scoped.Responsibles, visible, err = narrow(filters.Responsibles, scope.Responsibles)
	if err != nil || !visible {
		return scoped, visible, err
	}

	scoped.Partners, visible, err = narrow(filters.Partners, scope.Partners)
	return scoped, visible, err
}

func narrow(requested, allowed []bson.ObjectID) ([]bson.ObjectID, bool, error) {
	if allowed == nil {
		return requested, true, nil
	}
	if len(requested) == 0 {
		return slices.Clone(allowed), len(allowed) > 0, nil
	}
	for _, id := range requested {
		if !slices.Contains(allowed, id) {
			return nil, false, utils.Forbidden(utils.KANBAN_FORBIDDEN_SCOPE, "Filtro fora do escopo de permissões do usuário")
		}
	}
	return requested, true, nil
}
