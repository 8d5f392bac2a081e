package paper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/internal/agent/concept"
	"github.com/feichai0017/paper-processor/internal/agent/converter"
	"github.com/feichai0017/paper-processor/internal/agent/extractor"
	"github.com/feichai0017/paper-processor/internal/models"
	"github.com/feichai0017/paper-processor/internal/store"
	"github.com/feichai0017/paper-processor/internal/store/badger"
	"github.com/feichai0017/paper-processor/internal/utils/validator"
	"github.com/feichai0017/paper-processor/pkg/converters"
	"github.com/feichai0017/paper-processor/pkg/logger"
	"github.com/feichai0017/paper-processor/pkg/queue"
	"github.com/feichai0017/paper-processor/pkg/storage/local"
)

const paperText = "Deep Graphs\nLi Wei\nAbstract: we study graphs with CNN."

// scriptedLLM 按提示词内容返回固定响应
type scriptedLLM struct {
	mu       sync.Mutex
	metadata string
	summary  string
	concepts map[string]string
	failOn   string
	calls    []string
}

func (l *scriptedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kind := "concept"
	switch {
	case strings.HasPrefix(prompt, "你是一个学术论文元数据提取专家"):
		kind = "metadata"
	case strings.HasPrefix(prompt, "你是一个学术论文分析专家"):
		kind = "summary"
	}
	l.calls = append(l.calls, kind)

	if l.failOn != "" && strings.Contains(prompt, l.failOn) {
		return "", errors.New("connection refused")
	}
	switch kind {
	case "metadata":
		return l.metadata, nil
	case "summary":
		return l.summary, nil
	}
	for rel, resp := range l.concepts {
		if strings.Contains(prompt, "关系类型: "+rel+"\n") {
			return resp, nil
		}
	}
	return `{"concepts": []}`, nil
}

func (l *scriptedLLM) count(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == kind {
			n++
		}
	}
	return n
}

// textConverter 把固定文本写到输出路径
type textConverter struct{ text string }

func (c textConverter) Name() string { return "text" }

func (c textConverter) Convert(ctx context.Context, input, output string) error {
	return os.WriteFile(output, []byte(c.text), 0644)
}

type failingConverter struct{}

func (failingConverter) Name() string { return "failing" }

func (failingConverter) Convert(ctx context.Context, input, output string) error {
	return errors.New("exit status 1")
}

// cancellingConverter 模拟处理超时：取消 ctx 后返回错误
type cancellingConverter struct{ cancel context.CancelFunc }

func (c cancellingConverter) Name() string { return "cancelling" }

func (c cancellingConverter) Convert(ctx context.Context, input, output string) error {
	c.cancel()
	return ctx.Err()
}

type panickingExtractor struct{ Extractor }

func (panickingExtractor) Extract(ctx context.Context, rawText, doclingPath string) (models.MetadataFields, error) {
	panic("index out of range")
}

type staticConcepts []models.CustomConceptDefinition

func (s staticConcepts) List(ctx context.Context) ([]models.CustomConceptDefinition, error) {
	return s, nil
}

type savedSummary struct {
	model, title, json, reviewer string
}

type fakeGateway struct {
	mu         sync.Mutex
	articles   []*models.ArticleRecord
	summaries  []savedSummary
	rebuilds   []string
	saveErr    error
	rebuildErr error
}

func (g *fakeGateway) SaveArticle(ctx context.Context, a *models.ArticleRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.articles = append(g.articles, a)
	return nil
}

func (g *fakeGateway) SaveSummary(ctx context.Context, model, title, summaryJSON, reviewer string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.summaries = append(g.summaries, savedSummary{model, title, summaryJSON, reviewer})
	return nil
}

func (g *fakeGateway) RebuildGraph(ctx context.Context, title string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rebuildErr != nil {
		return g.rebuildErr
	}
	g.rebuilds = append(g.rebuilds, title)
	return nil
}

func (g *fakeGateway) writes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.articles) + len(g.summaries) + len(g.rebuilds)
}

// recordingStore 记录每次写入后的状态和进度
type recordingStore struct {
	store.TaskStore
	mu      sync.Mutex
	history []models.ProcessingTask
}

// Get 与网络存储一样，ctx 取消后读写失败
func (r *recordingStore) Get(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.TaskStore.Get(ctx, taskID)
}

func (r *recordingStore) Update(ctx context.Context, task *models.ProcessingTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.TaskStore.Update(ctx, task); err != nil {
		return err
	}
	r.mu.Lock()
	r.history = append(r.history, *task)
	r.mu.Unlock()
	return nil
}

func (r *recordingStore) snapshots() []models.ProcessingTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProcessingTask(nil), r.history...)
}

// manualDispatcher 只记录提交，测试中手动调用 Run
type manualDispatcher struct {
	submitted []string
	err       error
}

func (d *manualDispatcher) Submit(ctx context.Context, taskID string) error {
	if d.err != nil {
		return d.err
	}
	d.submitted = append(d.submitted, taskID)
	return nil
}

func (d *manualDispatcher) InFlight(ctx context.Context) (int, error) { return len(d.submitted), nil }
func (d *manualDispatcher) Close() error                              { return nil }

type flakyFiles struct {
	FileStore
}

func (flakyFiles) Delete(ctx context.Context, key string) error {
	return errors.New("permission denied")
}

type harness struct {
	svc        *Service
	tasks      *recordingStore
	files      *local.LocalStorage
	gateway    *fakeGateway
	llm        *scriptedLLM
	dispatcher *manualDispatcher
	log        *logger.TestLogger
}

type harnessOption func(*Deps, *Options)

func withConverter(c Converter) harnessOption {
	return func(d *Deps, _ *Options) { d.Converter = c }
}

func withConcepts(defs ...models.CustomConceptDefinition) harnessOption {
	return func(d *Deps, _ *Options) { d.Concepts = staticConcepts(defs) }
}

func withPanickingExtractor() harnessOption {
	return func(d *Deps, _ *Options) { d.Extractor = panickingExtractor{Extractor: d.Extractor} }
}

func withoutSummary() harnessOption {
	return func(_ *Deps, o *Options) { o.SummaryEnabled = false }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	log := logger.NewTestLogger()

	kv, err := badger.Open("", true, time.Hour, log)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	files, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)

	h := &harness{
		tasks:   &recordingStore{TaskStore: kv},
		files:   files,
		gateway: &fakeGateway{},
		llm: &scriptedLLM{
			metadata: "```json\n{\"title\": \"T1\", \"author\": [\"Li Wei\"], \"year\": 2021, \"doi\": \"\", \"summary\": \"We study graphs.\"}\n```",
			summary:  `{"summary1": "graphs", "fullSummary": "A study of graphs."}`,
			concepts: map[string]string{},
		},
		dispatcher: &manualDispatcher{},
		log:        log,
	}

	orchestrator := converter.NewOrchestrator(config.ConverterConfig{}, log,
		converter.WithCaj2Pdf(failingConverter{}),
		converter.WithPdf2Docx(failingConverter{}),
		converter.WithPdf2Txt(textConverter{text: paperText}),
	)
	deps := Deps{
		Tasks:     h.tasks,
		Files:     files,
		Validator: validator.NewPaperValidator(log, validator.DefaultConfig(1<<20, []string{".pdf", ".caj"})),
		Converter: orchestrator,
		Extractor: extractor.NewEngine(h.llm, 12000, log),
		Matcher:   concept.NewMatcher(h.llm, 4000, log),
		Concepts:  staticConcepts(nil),
		Gateway:   h.gateway,
		Summaries: converters.NewSummaryConverter("test-model"),
	}
	options := Options{SummaryEnabled: true, Model: "test-model"}
	for _, opt := range opts {
		opt(&deps, &options)
	}

	h.svc = NewService(deps, options, log)
	h.svc.SetDispatcher(h.dispatcher)
	return h
}

func (h *harness) upload(t *testing.T, name, body string) *models.ProcessingTask {
	t.Helper()
	task, err := h.svc.Upload(context.Background(), strings.NewReader(body), name, int64(len(body)))
	require.NoError(t, err)
	return task
}

func (h *harness) uploadAndRun(t *testing.T) *models.ProcessingTask {
	t.Helper()
	task := h.upload(t, "paper.pdf", "%PDF-1.7 body")
	require.NoError(t, h.svc.Run(context.Background(), task.TaskID))
	got, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	return got
}

func def(slot int, rel string, concepts ...string) models.CustomConceptDefinition {
	return models.CustomConceptDefinition{
		DisplayOrder:     slot,
		RelationshipName: rel,
		Concepts:         strings.Join(concepts, ";"),
	}
}

func TestUpload_CreatesTaskAndDispatches(t *testing.T) {
	h := newHarness(t)

	task := h.upload(t, "My Paper.PDF", "%PDF-1.7 body")
	assert.Equal(t, models.StatusUploading, task.Status)
	assert.Equal(t, 10, task.Progress)
	assert.Equal(t, "upload complete", task.CurrentStep)
	assert.Equal(t, "My Paper.PDF", task.FileName)
	assert.NotEmpty(t, task.ContentHash)
	assert.Regexp(t, `^paper_[0-9a-f-]{36}\.pdf$`, filepath.Base(task.FilePath))
	assert.FileExists(t, task.FilePath)
	assert.Equal(t, []string{task.TaskID}, h.dispatcher.submitted)

	stored, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, stored.Status)
}

func TestUpload_InvalidFile(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Upload(context.Background(), strings.NewReader("notes"), "notes.txt", 5)
	assert.ErrorIs(t, err, ErrInvalidFile)
	assert.Empty(t, h.dispatcher.submitted)
}

func TestUpload_OverloadedRemovesFileAndTask(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = queue.ErrOverloaded

	_, err := h.svc.Upload(context.Background(), strings.NewReader("%PDF-1.7"), "paper.pdf", 8)
	assert.ErrorIs(t, err, ErrOverloaded)

	entries, err := os.ReadDir(h.files.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)

	tasks, err := h.svc.ListTasks(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestGetStatus_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRun_ReachesPendingApproval(t *testing.T) {
	h := newHarness(t, withConcepts(def(1, "method", "CNN", "RNN")))
	h.llm.concepts["method"] = `{"concepts": ["cnn", "Transformer"]}`

	task := h.uploadAndRun(t)

	assert.Equal(t, models.StatusPendingApproval, task.Status)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, "awaiting review", task.CurrentStep)
	assert.Empty(t, task.ErrorMessage)
	assert.Equal(t, "T1", task.ExtractedTitle)
	assert.Equal(t, "Li Wei", task.ExtractedAuthors)
	assert.Equal(t, "2021", task.ExtractedYear)
	assert.Equal(t, models.NotExtracted, task.ExtractedDoi)
	assert.Equal(t, models.NotExtracted, task.ExtractedSource)
	assert.Equal(t, "A study of graphs.", task.ExtractedSummary)
	assert.Contains(t, task.ExtractedSummaryJSON, `"summary1":"graphs"`)

	match, err := concept.Decode(task.ExtractedCustomConcept1)
	require.NoError(t, err)
	assert.Equal(t, "method", match.RelationshipName)
	assert.Equal(t, []string{"CNN"}, match.MatchingConcepts)
	assert.Empty(t, task.ExtractedCustomConcept2)

	var statuses []models.TaskStatus
	var progress []int
	for _, s := range h.tasks.snapshots() {
		statuses = append(statuses, s.Status)
		progress = append(progress, s.Progress)
	}
	assert.Equal(t, []models.TaskStatus{
		models.StatusConverting,
		models.StatusExtracting,
		models.StatusExtracting,
		models.StatusAnalyzing,
		models.StatusPendingApproval,
	}, statuses)
	assert.Equal(t, []int{20, 40, 60, 80, 100}, progress)
	assert.Equal(t, 1, h.llm.count("metadata"))
	assert.Equal(t, 1, h.llm.count("summary"))
	assert.Zero(t, h.gateway.writes())
}

func TestRun_ProgressIsMonotonicUntilFailure(t *testing.T) {
	h := newHarness(t)
	h.llm.failOn = "你是一个学术论文分析专家"

	task := h.uploadAndRun(t)
	require.Equal(t, models.StatusFailed, task.Status)

	snaps := h.tasks.snapshots()
	last := 10
	for _, s := range snaps {
		if s.Status == models.StatusFailed {
			assert.Zero(t, s.Progress)
			continue
		}
		assert.GreaterOrEqual(t, s.Progress, last)
		last = s.Progress
	}
	assert.Equal(t, models.StatusFailed, snaps[len(snaps)-1].Status)
	assert.Equal(t, "failed at summarize", task.CurrentStep)
	assert.Contains(t, task.ErrorMessage, "connection refused")
}

func TestRun_CAJConversionFailureFailsTask(t *testing.T) {
	h := newHarness(t, withConverter(converter.NewOrchestrator(config.ConverterConfig{}, logger.NewTestLogger(),
		converter.WithCaj2Pdf(failingConverter{}),
		converter.WithPdf2Docx(failingConverter{}),
		converter.WithPdf2Txt(failingConverter{}),
	)))

	task := h.upload(t, "paper.caj", "HN\x00\x01cajdata")
	require.NoError(t, h.svc.Run(context.Background(), task.TaskID))

	got, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Zero(t, got.Progress)
	assert.Contains(t, got.ErrorMessage, converter.ErrNoExtractableText.Error())
	assert.Equal(t, "failed at convert", got.CurrentStep)
	assert.Zero(t, h.llm.count("metadata"))
	assert.Zero(t, h.gateway.writes())

	_, err = h.svc.Approve(context.Background(), task.TaskID, Edits{})
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Zero(t, h.gateway.writes())
}

func TestRun_ExtractionFailureFailsTask(t *testing.T) {
	h := newHarness(t)
	h.llm.failOn = "你是一个学术论文元数据提取专家"

	task := h.uploadAndRun(t)
	assert.Equal(t, models.StatusFailed, task.Status)
	assert.Equal(t, "failed at extract", task.CurrentStep)
	assert.Contains(t, task.ErrorMessage, extractor.ErrExtraction.Error())
}

func TestRun_UnparseableMetadataUsesPlaceholders(t *testing.T) {
	h := newHarness(t)
	h.llm.metadata = "I could not read this paper."

	task := h.uploadAndRun(t)
	assert.Equal(t, models.StatusPendingApproval, task.Status)
	assert.Equal(t, models.NotExtracted, task.ExtractedTitle)
	assert.Equal(t, models.NotExtracted, task.ExtractedAbstract)
}

func TestRun_NoConceptDefinitionsMakesNoConceptCalls(t *testing.T) {
	h := newHarness(t)

	task := h.uploadAndRun(t)
	assert.Equal(t, models.StatusPendingApproval, task.Status)
	assert.Zero(t, h.llm.count("concept"))
	for slot := 1; slot <= models.MaxConceptSlots; slot++ {
		assert.Empty(t, task.ConceptSlot(slot))
	}
}

func TestRun_ConceptFailureIsIsolated(t *testing.T) {
	h := newHarness(t, withConcepts(
		def(1, "method", "CNN"),
		def(2, "broken", "X"),
		def(3, "dataset", "ImageNet"),
	))
	h.llm.concepts["method"] = `{"concepts": ["CNN"]}`
	h.llm.concepts["dataset"] = `{"concepts": ["ImageNet"]}`
	h.llm.failOn = "关系类型: broken\n"

	task := h.uploadAndRun(t)
	assert.Equal(t, models.StatusPendingApproval, task.Status)
	assert.NotEmpty(t, task.ExtractedCustomConcept1)
	assert.Empty(t, task.ExtractedCustomConcept2)
	assert.NotEmpty(t, task.ExtractedCustomConcept3)
	assert.Equal(t, 3, h.llm.count("concept"))
}

func TestRun_SummaryStageDisabled(t *testing.T) {
	h := newHarness(t, withoutSummary())

	task := h.uploadAndRun(t)
	assert.Equal(t, models.StatusPendingApproval, task.Status)
	assert.Zero(t, h.llm.count("summary"))
	assert.Equal(t, "We study graphs.", task.ExtractedSummary)

	for _, s := range h.tasks.snapshots() {
		assert.NotEqual(t, models.StatusAnalyzing, s.Status)
	}
}

func TestRun_SkipsTaskAlreadyStarted(t *testing.T) {
	h := newHarness(t)
	task := h.uploadAndRun(t)

	require.NoError(t, h.svc.Run(context.Background(), task.TaskID))
	assert.Equal(t, 1, h.llm.count("metadata"))
	assert.True(t, h.log.HasMessage("WARN", "already started"))

	got, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, got.Status)
}

func TestRun_PanicInStageFailsTask(t *testing.T) {
	h := newHarness(t, withPanickingExtractor())
	task := h.upload(t, "paper.pdf", "%PDF-1.7 body")

	assert.NotPanics(t, func() {
		assert.NoError(t, h.svc.Run(context.Background(), task.TaskID))
	})

	got, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Zero(t, got.Progress)
	assert.Contains(t, got.ErrorMessage, "panic: index out of range")
	assert.True(t, h.log.HasMessage("ERROR", "Pipeline panicked"))

	// 锁已释放，后续操作不会阻塞
	_, err = h.svc.Approve(context.Background(), task.TaskID, Edits{})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestRun_PanicThroughPoolDispatcherFailsTask(t *testing.T) {
	h := newHarness(t, withPanickingExtractor())
	pool, err := queue.NewPoolDispatcher(h.svc.Run, 1, 2, h.log)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	h.svc.SetDispatcher(pool)

	task := h.upload(t, "paper.pdf", "%PDF-1.7 body")

	require.Eventually(t, func() bool {
		got, err := h.svc.GetStatus(context.Background(), task.TaskID)
		return err == nil && got.Status == models.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRun_RecordsFailureAfterContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, withConverter(converter.NewOrchestrator(config.ConverterConfig{}, logger.NewTestLogger(),
		converter.WithPdf2Docx(failingConverter{}),
		converter.WithPdf2Txt(cancellingConverter{cancel: cancel}),
	)))
	task := h.upload(t, "paper.pdf", "%PDF-1.7 body")

	require.NoError(t, h.svc.Run(ctx, task.TaskID))

	got, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "failed at convert", got.CurrentStep)
}

func TestRun_RedeliveredInterruptedTaskFails(t *testing.T) {
	h := newHarness(t)
	task := h.upload(t, "paper.pdf", "%PDF-1.7 body")

	// 上一次执行停在转换阶段
	stuck, err := h.tasks.Get(context.Background(), task.TaskID)
	require.NoError(t, err)
	stuck.Status = models.StatusConverting
	stuck.Progress = 20
	require.NoError(t, h.tasks.Update(context.Background(), stuck))

	require.NoError(t, h.svc.Run(context.Background(), task.TaskID))

	got, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Zero(t, got.Progress)
	assert.Contains(t, got.ErrorMessage, "interrupted")
	assert.Contains(t, got.ErrorMessage, "CONVERTING")
	assert.Zero(t, h.llm.count("metadata"))
}

func TestResume_ResubmitsQueuedAndFailsInterrupted(t *testing.T) {
	h := newHarness(t)
	queued := h.upload(t, "queued.pdf", "%PDF-1.7 body")
	running := h.upload(t, "running.pdf", "%PDF-1.7 body")
	done := h.uploadAndRun(t)

	stuck, err := h.tasks.Get(context.Background(), running.TaskID)
	require.NoError(t, err)
	stuck.Status = models.StatusExtracting
	stuck.Progress = 40
	require.NoError(t, h.tasks.Update(context.Background(), stuck))

	h.dispatcher.submitted = nil
	resubmitted, failed, err := h.svc.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resubmitted)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{queued.TaskID}, h.dispatcher.submitted)

	got, err := h.svc.GetStatus(context.Background(), running.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "EXTRACTING")

	got, err = h.svc.GetStatus(context.Background(), done.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, got.Status)
}

func TestApprove_StoresEditedTitleAndRebuildsGraph(t *testing.T) {
	h := newHarness(t, withConcepts(def(2, "method", "CNN")))
	h.llm.concepts["method"] = `{"concepts": ["CNN"]}`
	task := h.uploadAndRun(t)
	require.Equal(t, "T1", task.ExtractedTitle)

	title, empty := "T2", "  "
	approved, err := h.svc.Approve(context.Background(), task.TaskID, Edits{Title: &title, Doi: &empty})
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, 100, approved.Progress)
	require.NotNil(t, approved.CompletedTime)
	assert.Equal(t, "T2", approved.ExtractedTitle)

	require.Len(t, h.gateway.articles, 1)
	article := h.gateway.articles[0]
	assert.Equal(t, "T2", article.Title)
	assert.Equal(t, "Li Wei", article.Author)
	assert.Equal(t, models.NotExtracted, article.Doi)
	assert.Equal(t, task.FilePath, article.PathA)
	assert.Equal(t, converter.BasePath(task.FilePath)+".txt", article.PathTXT)
	assert.Equal(t, converter.BasePath(task.FilePath)+".pdf", article.PathPDF)
	assert.Equal(t, task.ExtractedCustomConcept2, article.CustomConcept2)

	require.Len(t, h.gateway.summaries, 1)
	assert.Equal(t, savedSummary{"test-model", "T2", task.ExtractedSummaryJSON, "0"}, h.gateway.summaries[0])
	assert.Equal(t, []string{"T2"}, h.gateway.rebuilds)

	stored, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.NotNil(t, stored.CompletedTime)
}

func TestApprove_EditedSummaryIsMarkedAsReviewed(t *testing.T) {
	h := newHarness(t)
	task := h.uploadAndRun(t)

	summary := `{"summary1":"edited"}`
	_, err := h.svc.Approve(context.Background(), task.TaskID, Edits{SummaryJSON: &summary})
	require.NoError(t, err)
	require.Len(t, h.gateway.summaries, 1)
	assert.Equal(t, summary, h.gateway.summaries[0].json)
	assert.Equal(t, "1", h.gateway.summaries[0].reviewer)
}

func TestApprove_PersistenceFailureKeepsPending(t *testing.T) {
	h := newHarness(t)
	task := h.uploadAndRun(t)
	h.gateway.saveErr = errors.New("connection reset")

	_, err := h.svc.Approve(context.Background(), task.TaskID, Edits{})
	assert.ErrorIs(t, err, ErrPersistence)

	stored, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, stored.Status)
	assert.Nil(t, stored.CompletedTime)
	assert.Empty(t, h.gateway.rebuilds)

	// 修复后可以重试
	h.gateway.saveErr = nil
	_, err = h.svc.Approve(context.Background(), task.TaskID, Edits{})
	require.NoError(t, err)
}

func TestApprove_GraphFailureKeepsPending(t *testing.T) {
	h := newHarness(t)
	task := h.uploadAndRun(t)
	h.gateway.rebuildErr = errors.New("neo4j unavailable")

	_, err := h.svc.Approve(context.Background(), task.TaskID, Edits{})
	assert.ErrorIs(t, err, ErrPersistence)

	stored, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, stored.Status)
}

func TestApprove_Preconditions(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Approve(context.Background(), "missing", Edits{})
	assert.ErrorIs(t, err, ErrNotFound)

	task := h.upload(t, "paper.pdf", "%PDF-1.7")
	_, err = h.svc.Approve(context.Background(), task.TaskID, Edits{})
	assert.ErrorIs(t, err, ErrStateConflict)

	stored, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, stored.Status)
}

func TestReject_DeletesArtifacts(t *testing.T) {
	h := newHarness(t)
	task := h.uploadAndRun(t)
	txt := converter.Siblings(task.FilePath).TXT
	require.FileExists(t, txt)

	rejected, err := h.svc.Reject(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.NotNil(t, rejected.CompletedTime)
	assert.NoFileExists(t, task.FilePath)
	assert.NoFileExists(t, txt)
	assert.Zero(t, h.gateway.writes())

	_, err = h.svc.Reject(context.Background(), task.TaskID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestReject_DeletionFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	task := h.uploadAndRun(t)
	h.svc.Files = flakyFiles{FileStore: h.files}

	rejected, err := h.svc.Reject(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.True(t, h.log.HasMessage("WARN", "not deleted on reject"))
}

func TestReject_FailedTaskIsImmutable(t *testing.T) {
	h := newHarness(t)
	h.llm.failOn = "你是一个学术论文元数据提取专家"
	task := h.uploadAndRun(t)
	require.Equal(t, models.StatusFailed, task.Status)

	_, err := h.svc.Reject(context.Background(), task.TaskID)
	assert.ErrorIs(t, err, ErrStateConflict)

	got, err := h.svc.GetStatus(context.Background(), task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, task.ErrorMessage, got.ErrorMessage)
	assert.FileExists(t, task.FilePath)

	_, err = h.svc.Reject(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupTasks(t *testing.T) {
	h := newHarness(t)
	approved := h.uploadAndRun(t)
	_, err := h.svc.Approve(context.Background(), approved.TaskID, Edits{})
	require.NoError(t, err)

	h.llm.failOn = "你是一个学术论文元数据提取专家"
	failed := h.uploadAndRun(t)
	pending := h.upload(t, "paper.pdf", "%PDF-1.7")

	deleted, err := h.svc.CleanupTasks(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	h.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	deleted, err = h.svc.CleanupTasks(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = h.svc.GetStatus(context.Background(), approved.TaskID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.svc.GetStatus(context.Background(), pending.TaskID)
	assert.NoError(t, err)

	assert.FileExists(t, approved.FilePath)
	assert.NoFileExists(t, failed.FilePath)
}

func TestListTasks_FiltersByStatus(t *testing.T) {
	h := newHarness(t)
	h.uploadAndRun(t)
	h.upload(t, "other.pdf", "%PDF-1.7")

	all, err := h.svc.ListTasks(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := h.svc.ListTasks(context.Background(), models.StatusPendingApproval)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.StatusPendingApproval, pending[0].Status)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("task")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)
}
