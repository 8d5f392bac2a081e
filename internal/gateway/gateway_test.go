package gateway

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/converters"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

type memArticles struct {
	articles  []*models.ArticleRecord
	summaries []*models.ArticleSummary
	err       error
}

func (m *memArticles) SaveArticle(_ context.Context, a *models.ArticleRecord) error {
	if m.err != nil {
		return m.err
	}
	a.ID = uint(len(m.articles) + 1)
	m.articles = append(m.articles, a)
	return nil
}

func (m *memArticles) SaveSummary(_ context.Context, s *models.ArticleSummary) error {
	if m.err != nil {
		return m.err
	}
	m.summaries = append(m.summaries, s)
	return nil
}

type memGraph struct {
	titles []string
	err    error
}

func (g *memGraph) Rebuild(_ context.Context, title string) error {
	g.titles = append(g.titles, title)
	return g.err
}

type memArchive struct {
	keys []string
}

func (a *memArchive) Store(_ context.Context, r io.Reader, key string) (string, error) {
	io.Copy(io.Discard, r)
	a.keys = append(a.keys, key)
	return key, nil
}
func (a *memArchive) Get(context.Context, string) (io.ReadCloser, error) { return nil, errors.New("no") }
func (a *memArchive) Delete(context.Context, string) error               { return nil }
func (a *memArchive) CleanupBefore(context.Context, time.Time) (int, error) {
	return 0, nil
}

func TestGateway_SaveAndRebuild(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "paper_1.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0644))

	articles, graph, archive := &memArticles{}, &memGraph{}, &memArchive{}
	g := New(articles, graph, archive, converters.NewSummaryConverter("m"), logger.NewTestLogger())
	ctx := context.Background()

	require.NoError(t, g.SaveArticle(ctx, &models.ArticleRecord{Title: "T", PathA: pdf, PathPDF: pdf, PathTXT: filepath.Join(dir, "missing.txt")}))
	assert.Equal(t, []string{"articles/1/paper_1.pdf"}, archive.keys)

	require.NoError(t, g.SaveSummary(ctx, "m", "T", `{"summary1":"s"}`, "0"))
	require.Len(t, articles.summaries, 1)
	assert.Equal(t, "s", articles.summaries[0].Summary1)

	require.NoError(t, g.RebuildGraph(ctx, "T"))
	assert.Equal(t, []string{"T"}, graph.titles)
}

func TestGateway_WrapsFailures(t *testing.T) {
	g := New(&memArticles{err: errors.New("db down")}, &memGraph{err: errors.New("neo4j down")}, nil,
		converters.NewSummaryConverter("m"), logger.NewTestLogger())
	ctx := context.Background()

	assert.ErrorIs(t, g.SaveArticle(ctx, &models.ArticleRecord{Title: "T"}), ErrPersistence)
	assert.ErrorIs(t, g.SaveSummary(ctx, "m", "T", "{}", "0"), ErrPersistence)
	assert.ErrorIs(t, g.RebuildGraph(ctx, ""), ErrPersistence)
}

func TestScriptGraphLoader(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args.txt")
	script := filepath.Join(dir, "loader.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo \"$@\" > "+out+"\n"), 0644))

	l := NewScriptGraphLoader("sh", config.GraphConfig{LoaderScript: script, Timeout: time.Minute}, logger.NewTestLogger())

	require.NoError(t, l.Rebuild(context.Background(), "Graph Networks"))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "--title Graph Networks", strings.TrimSpace(string(data)))

	require.NoError(t, l.Rebuild(context.Background(), ""))
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "--full", strings.TrimSpace(string(data)))
}

func TestScriptGraphLoader_Failure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "loader.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo connection refused\nexit 1\n"), 0644))

	l := NewScriptGraphLoader("sh", config.GraphConfig{LoaderScript: script}, logger.NewTestLogger())
	err := l.Rebuild(context.Background(), "T")
	assert.ErrorContains(t, err, "connection refused")

	l = NewScriptGraphLoader("sh", config.GraphConfig{}, logger.NewTestLogger())
	assert.Error(t, l.Rebuild(context.Background(), "T"))
}
