package kanban

import (
	"crm/source/schemas"
	"crm/source/utils"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestParseScopeColumn(t *testing.T) {
	ids, err := parseScopeColumn(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, ids)

	ids, err = parseScopeColumn(sql.NullString{String: "[]", Valid: true})
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	id := bson.NewObjectID()
	ids, err = parseScopeColumn(sql.NullString{String: `["` + id.Hex() + `"]`, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{id}, ids)

	_, err = parseScopeColumn(sql.NullString{String: `["zzz"]`, Valid: true})
	assert.Error(t, err)
	_, err = parseScopeColumn(sql.NullString{String: `not json`, Valid: true})
	assert.Error(t, err)
}

func TestApplyScope(t *testing.T) {
	mine, other := bson.NewObjectID(), bson.NewObjectID()
	partner := bson.NewObjectID()

	tests := []struct {
		name         string
		filters      schemas.StageFilters
		scope        Scope
		visible      bool
		forbidden    bool
		responsibles []bson.ObjectID
		partners     []bson.ObjectID
	}{
		{
			name:    "unrestricted keeps the request",
			filters: schemas.StageFilters{Responsibles: []bson.ObjectID{other}},
			visible: true, responsibles: []bson.ObjectID{other},
		},
		{
			name:    "empty request defaults to the scope",
			scope:   Scope{Responsibles: []bson.ObjectID{mine}},
			visible: true, responsibles: []bson.ObjectID{mine},
		},
		{
			name:      "request outside the scope",
			filters:   schemas.StageFilters{Responsibles: []bson.ObjectID{other}},
			scope:     Scope{Responsibles: []bson.ObjectID{mine}},
			forbidden: true,
		},
		{
			name:  "empty scope shows nothing",
			scope: Scope{Responsibles: []bson.ObjectID{}, Partners: []bson.ObjectID{}},
		},
		{
			name:    "partners narrowed independently",
			filters: schemas.StageFilters{Responsibles: []bson.ObjectID{other}},
			scope:   Scope{Partners: []bson.ObjectID{partner}},
			visible: true, responsibles: []bson.ObjectID{other}, partners: []bson.ObjectID{partner},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scoped, visible, err := applyScope(tt.filters, tt.scope)
			if tt.forbidden {
				assert.ErrorIs(t, err, utils.ErrForbidden)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.visible, visible)
			if !tt.visible {
				return
			}
			assert.Equal(t, tt.responsibles, scoped.Responsibles)
			assert.Equal(t, tt.partners, scoped.Partners)
		})
	}
}
