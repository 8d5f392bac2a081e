package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

type fakeClient struct {
	responses []string
	err       error
	prompts   []string
}

func (f *fakeClient) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

func TestExtract_MapsFieldsAndFillsPlaceholders(t *testing.T) {
	client := &fakeClient{responses: []string{"```json\n" + `{
		"title": "Graph Networks",
		"author": ["Li Wei", "Zhang San"],
		"organ": "",
		"year": 2021,
		"source": null,
		"keyword": "GNN; graphs",
		"summary": "We study graphs."
	}` + "\n```"}}
	engine := NewEngine(client, 12000, logger.NewTestLogger())

	fields, err := engine.Extract(context.Background(), "raw paper text", "")
	require.NoError(t, err)

	assert.Equal(t, "Graph Networks", fields.Title)
	assert.Equal(t, "Li Wei; Zhang San", fields.Author)
	assert.Equal(t, models.NotExtracted, fields.Organ)
	assert.Equal(t, "2021", fields.Year)
	assert.Equal(t, models.NotExtracted, fields.Source)
	assert.Equal(t, "GNN; graphs", fields.Keyword)
	assert.Equal(t, models.NotExtracted, fields.Doi)
	assert.Equal(t, "We study graphs.", fields.Summary)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "\"organ\": \"作者单位\"")
	assert.True(t, strings.HasSuffix(client.prompts[0], "raw paper text"))
}

func TestExtract_UnparseableResponseGivesPlaceholders(t *testing.T) {
	log := logger.NewTestLogger()
	engine := NewEngine(&fakeClient{responses: []string{"I cannot help with that"}}, 12000, log)

	fields, err := engine.Extract(context.Background(), "text", "")
	require.NoError(t, err)
	assert.Equal(t, models.NotExtracted, fields.Title)
	assert.Equal(t, models.NotExtracted, fields.Summary)
	assert.True(t, log.HasMessage("WARN", "not a JSON object"))
}

func TestExtract_ClientFailureIsExtractionError(t *testing.T) {
	boom := errors.New("connection refused")
	engine := NewEngine(&fakeClient{err: boom}, 12000, logger.NewTestLogger())

	_, err := engine.Extract(context.Background(), "text", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, boom)

	_, err = engine.Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestSummarize(t *testing.T) {
	client := &fakeClient{responses: []string{`{"summary1": "短摘要", "algorithm1": "GCN", "fullSummary": "完整摘要"}`}}
	engine := NewEngine(client, 12000, logger.NewTestLogger())

	fields, err := engine.Summarize(context.Background(), "content")
	require.NoError(t, err)
	assert.Equal(t, "短摘要", fields.Summary1)
	assert.Equal(t, "GCN", fields.Algorithm1)
	assert.Equal(t, "完整摘要", fields.FullSummary)
	assert.Equal(t, models.NotExtracted, fields.Weekpoint)
	assert.Contains(t, client.prompts[0], "\"weekpoint\"")
}

func TestSummaryFromAbstract(t *testing.T) {
	fields := SummaryFromAbstract("abstract text")
	assert.Equal(t, "abstract text", fields.Summary1)
	assert.Equal(t, "abstract text", fields.FullSummary)
	assert.Equal(t, models.NotExtracted, fields.Target)

	assert.Equal(t, models.NotExtracted, SummaryFromAbstract("").Summary1)
}

func TestBuildContext_PrefersStructuredExtraction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.docling.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"title": "Graph Networks",
		"authors": ["Li Wei", "Zhang San"],
		"abstract": "We study graphs.",
		"introduction": "Graphs are everywhere.",
		"conclusion": "Graphs work.",
		"sections": [{"title": "Method", "first_paragraph": "We use GCN."}, {"title": "Empty", "first_paragraph": ""}],
		"markdown_head": "# Graph Networks"
	}`), 0644))

	ctx := BuildContext("raw text that should not be used", path, 12000)
	assert.Contains(t, ctx, "Title: Graph Networks")
	assert.Contains(t, ctx, "Authors: Li Wei; Zhang San")
	assert.Contains(t, ctx, "Section Method: We use GCN.")
	assert.NotContains(t, ctx, "Section Empty")
	assert.NotContains(t, ctx, "raw text")
}

func TestBuildContext_FallsBackToRawText(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.docling.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0644))

	assert.Equal(t, "raw text", BuildContext("  raw text  ", broken, 100))
	assert.Equal(t, "raw text", BuildContext("raw text", filepath.Join(dir, "missing.json"), 100))
	assert.Equal(t, "raw text", BuildContext("raw text", "", 100))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc"+TruncationMarker, Truncate("abcdef", 3))
	assert.Equal(t, "论文"+TruncationMarker, Truncate("论文内容", 2))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))

	long := strings.Repeat("x", 20000)
	ctx := BuildContext(long, "", 12000)
	assert.Equal(t, 12000+len([]rune(TruncationMarker)), len([]rune(ctx)))
}
