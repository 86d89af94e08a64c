package load

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Load{}, &Document{}))
	return db
}

func TestLookupGetLoad(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&Load{ID: "load-1", LoadNumber: "LD-100", Status: "DELIVERED"}).Error)

	lookup := NewLookup(Params{DB: db})
	got, err := lookup.GetLoad(context.Background(), "load-1")
	require.NoError(t, err)
	assert.Equal(t, "LD-100", got.Reference())

	_, err = lookup.GetLoad(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLoadNotFound)
	_, err = lookup.GetLoad(context.Background(), " ")
	assert.ErrorIs(t, err, ErrLoadNotFound)
}

func TestLookupListDocumentsOrdered(t *testing.T) {
	db := setupDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&[]Document{
		{ID: "d2", LoadID: "load-1", Kind: "BOL", CreatedAt: base.Add(time.Hour)},
		{ID: "d1", LoadID: "load-1", Kind: "POD", CreatedAt: base},
		{ID: "d3", LoadID: "load-2", Kind: "POD", CreatedAt: base},
	}).Error)

	docs, err := NewLookup(Params{DB: db}).ListDocuments(context.Background(), "load-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "d2", docs[1].ID)
}

func TestReferenceFallsBackToID(t *testing.T) {
	assert.Equal(t, "load-9", Load{ID: "load-9"}.Reference())
}
