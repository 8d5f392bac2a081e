package concept

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/feichai0017/paper-processor/internal/repository"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repository.Migrate(db))
	return NewService(repository.NewConceptRepository(db), logger.NewTestLogger())
}

func TestUpsert_Valid(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	def, err := s.Upsert(ctx, Input{DisplayOrder: 1, RelationshipName: " method ", Concepts: []string{"CNN", " RNN", "CNN", ""}})
	require.NoError(t, err)
	assert.Equal(t, "method", def.RelationshipName)
	assert.Equal(t, "CNN;RNN", def.Concepts)
	assert.Equal(t, []string{"CNN", "RNN"}, def.ConceptList())

	def, err = s.Upsert(ctx, Input{DisplayOrder: 1, RelationshipName: "approach", Concepts: []string{"GNN"}})
	require.NoError(t, err)
	assert.Equal(t, "approach", def.RelationshipName)

	defs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestUpsert_Invalid(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	cases := map[string]Input{
		"slot too low":     {DisplayOrder: 0, RelationshipName: "m", Concepts: []string{"a"}},
		"slot too high":    {DisplayOrder: 4, RelationshipName: "m", Concepts: []string{"a"}},
		"blank name":       {DisplayOrder: 1, RelationshipName: "  ", Concepts: []string{"a"}},
		"no concepts":      {DisplayOrder: 1, RelationshipName: "m"},
		"too many":         {DisplayOrder: 1, RelationshipName: "m", Concepts: []string{"a", "b", "c", "d", "e", "f"}},
		"separator inside": {DisplayOrder: 1, RelationshipName: "m", Concepts: []string{"a;b"}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Upsert(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}

	defs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestUpsert_FiveDistinctAfterDedupIsAllowed(t *testing.T) {
	s := newTestService(t)
	_, err := s.Upsert(context.Background(), Input{
		DisplayOrder: 3, RelationshipName: "m",
		Concepts: []string{"a", "b", "c", "d", "e", "a", "b"},
	})
	assert.NoError(t, err)
}

func TestDeleteAndGet(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Input{DisplayOrder: 2, RelationshipName: "m", Concepts: []string{"a"}})
	require.NoError(t, err)

	_, err = s.Get(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, 2))
	assert.ErrorIs(t, s.Delete(ctx, 2), ErrNotFound)
	_, err = s.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}
