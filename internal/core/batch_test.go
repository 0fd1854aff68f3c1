package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/crawlers"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/storage"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type crawlFunc func(req crawlers.TargetRequest) (crawlers.TargetResult, error)

// fakeRunner 按目标返回预设行为,记录调用顺序
type fakeRunner struct {
	behaviors map[string]crawlFunc
	calls     []string
	pending   map[string][]string // 调用时Resume中尚未抓取的URL
}

func (r *fakeRunner) Crawl(_ context.Context, req crawlers.TargetRequest) (crawlers.TargetResult, error) {
	r.calls = append(r.calls, req.TargetID)
	if req.Resume != nil {
		if r.pending == nil {
			r.pending = make(map[string][]string)
		}
		r.pending[req.TargetID] = req.Resume.Remaining()
	}
	if fn, ok := r.behaviors[req.TargetID]; ok {
		return fn(req)
	}
	return fetchAll(req, urlsFor(req.TargetID, 2))
}

func urlsFor(targetID string, n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = "https://m.blog.naver.com/" + targetID + "/" + string(rune('1'+i))
	}
	return urls
}

func recordFor(url string) models.Post {
	return models.Post{RecordID: url, SourceURL: url, Title: "t"}
}

// fetchAll 模拟全部抓取成功,每篇之后调用Progress,最后一篇留在Unsaved
func fetchAll(req crawlers.TargetRequest, discovered []string) (crawlers.TargetResult, error) {
	tp := req.Resume
	if tp == nil {
		tp = models.NewTargetProgress(req.TargetID)
		tp.DiscoveredURLs = discovered
	}
	remaining := tp.Remaining()
	var batch []models.Post
	for i, u := range remaining {
		tp.MarkFetched(u)
		batch = append(batch, recordFor(u))
		if req.Progress != nil {
			req.Progress(float64(i+1) / float64(len(remaining)))
		}
		if len(batch) == 2 {
			if err := req.Save(batch, tp); err != nil {
				return crawlers.TargetResult{}, err
			}
			batch = nil
		}
	}
	tp.RefreshStatus()
	return crawlers.TargetResult{Progress: tp, Unsaved: batch, Fetched: len(remaining)}, nil
}

type harness struct {
	runner *fakeRunner
	store  *storage.FileCheckpointStore
	writer *storage.ResultWriter
	bc     *BatchCoordinator
	output string
}

func newHarness(t *testing.T, behaviors map[string]crawlFunc) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileCheckpointStore(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	runner := &fakeRunner{behaviors: behaviors}
	writer := storage.NewResultWriter(false)
	return &harness{
		runner: runner,
		store:  store,
		writer: writer,
		bc:     NewBatchCoordinator(runner, store, writer, models.DefaultCrawlConfig()),
		output: filepath.Join(dir, "out", "result.json"),
	}
}

func (h *harness) artifact(t *testing.T) *models.ExportArtifact {
	t.Helper()
	a, err := h.writer.Load(h.output)
	require.NoError(t, err)
	return a
}

func TestBatchCoordinator_RunCompletesAllTargets(t *testing.T) {
	h := newHarness(t, map[string]crawlFunc{
		"b": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			return fetchAll(req, urlsFor("b", 3))
		},
	})

	summary, err := h.bc.Run(context.Background(), []string{"a", " b ", "a"}, RunOptions{OutputPath: h.output})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, h.runner.calls)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 5, summary.NewRecords)
	assert.Equal(t, 5, summary.TotalRecords)
	assert.False(t, summary.Cancelled)

	cp, err := h.store.Load(summary.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, cp.Status)
	assert.Equal(t, 2, cp.ProcessedTargets)
	assert.Equal(t, CrawlTypeBatch, cp.CrawlType)
	assert.NotEmpty(t, cp.RunID)
	assert.Equal(t, h.output, cp.OutputPath)

	a := h.artifact(t)
	assert.Len(t, a.Records, 5)
	assert.Equal(t, 5, a.CrawlInfo.TotalRecords)
	assert.Equal(t, models.JobCompleted, a.CrawlInfo.Status)
	assert.Equal(t, cp.RunID, a.CrawlInfo.CrawlID)
	assert.False(t, a.CrawlInfo.Interrupted)
}

func TestBatchCoordinator_SingleTargetCrawlType(t *testing.T) {
	h := newHarness(t, nil)
	summary, err := h.bc.Run(context.Background(), []string{"solo"}, RunOptions{OutputPath: h.output})
	require.NoError(t, err)
	cp, err := h.store.Load(summary.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, CrawlTypeSingle, cp.CrawlType)
}

func TestBatchCoordinator_FailedTargetDoesNotStopBatch(t *testing.T) {
	h := newHarness(t, map[string]crawlFunc{
		"ghost": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			tp := models.NewTargetProgress(req.TargetID)
			return crawlers.TargetResult{Progress: tp},
				models.NewCrawlError(models.KindNotFound, req.TargetID, nil, "目标不存在")
		},
	})

	summary, err := h.bc.Run(context.Background(), []string{"a", "ghost", "c"}, RunOptions{OutputPath: h.output})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "ghost", "c"}, h.runner.calls)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	cp, err := h.store.Load(summary.CheckpointID)
	require.NoError(t, err)
	ghost := cp.Progress("ghost")
	require.NotNil(t, ghost)
	assert.Equal(t, models.TargetFailed, ghost.Status)
	assert.Contains(t, ghost.Error, "not_found")
	assert.Equal(t, 1, cp.FailedTargets)
	assert.Equal(t, models.JobCompleted, cp.Status)
}

func TestBatchCoordinator_PartialTargetStaysResumable(t *testing.T) {
	discovered := []string{"A", "B", "C", "D", "E"}
	h := newHarness(t, map[string]crawlFunc{
		"writer": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			tp := models.NewTargetProgress(req.TargetID)
			tp.DiscoveredURLs = discovered
			var batch []models.Post
			for _, u := range discovered {
				if u == "D" {
					tp.MarkFailed(u)
					continue
				}
				tp.MarkFetched(u)
				batch = append(batch, recordFor(u))
			}
			tp.RefreshStatus()
			return crawlers.TargetResult{Progress: tp, Unsaved: batch}, nil
		},
	})

	summary, err := h.bc.Run(context.Background(), []string{"writer", "next"}, RunOptions{OutputPath: h.output})
	require.NoError(t, err)
	assert.Equal(t, []string{"writer", "next"}, h.runner.calls)

	cp, err := h.store.Load(summary.CheckpointID)
	require.NoError(t, err)
	tp := cp.Progress("writer")
	require.NotNil(t, tp)
	assert.Equal(t, []string{"A", "B", "C", "E"}, tp.FetchedURLs)
	assert.Equal(t, models.TargetInProgress, tp.Status)
	assert.Equal(t, []string{"writer"}, cp.RemainingTargets())
	assert.Equal(t, 1, summary.Incomplete)
}

func TestBatchCoordinator_GeneratesReport(t *testing.T) {
	h := newHarness(t, map[string]crawlFunc{
		"a": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			tp := models.NewTargetProgress(req.TargetID)
			tp.DiscoveredURLs = []string{"a1", "a2"}
			tp.MarkFetched("a1")
			tp.MarkFailed("a2")
			tp.RefreshStatus()
			return crawlers.TargetResult{Progress: tp, Unsaved: []models.Post{recordFor("a1")}}, nil
		},
	})
	reportsDir := filepath.Join(t.TempDir(), "reports")
	h.bc.SetReporter(utils.NewReporter(reportsDir))

	summary, err := h.bc.Run(context.Background(), []string{"a", "b"}, RunOptions{OutputPath: h.output})
	require.NoError(t, err)

	reportPath := filepath.Join(reportsDir, summary.CheckpointID+"_report.json")
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report models.RunReport
	require.NoError(t, report.FromJSON(data))
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, 1, report.ProcessedTargets)
	require.Len(t, report.Targets, 2)
	assert.Equal(t, []string{"a2"}, report.Targets[0].FailedURLs)
	assert.Equal(t, models.TargetInProgress, report.Targets[0].Status)

	assert.FileExists(t, filepath.Join(reportsDir, summary.CheckpointID+"_failed_urls.json"))
}

func TestBatchCoordinator_CancelMidTargetFlushesAndPauses(t *testing.T) {
	stop := false
	h := newHarness(t, map[string]crawlFunc{
		"a": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			tp := models.NewTargetProgress(req.TargetID)
			tp.DiscoveredURLs = []string{"u1", "u2", "u3", "u4"}
			tp.MarkFetched("u1")
			tp.MarkFetched("u2")
			require.NoError(t, req.Save([]models.Post{recordFor("u1"), recordFor("u2")}, tp))
			tp.MarkFetched("u3")
			stop = true
			tp.RefreshStatus()
			return crawlers.TargetResult{Progress: tp, Unsaved: []models.Post{recordFor("u3")}, Cancelled: true}, nil
		},
	})

	summary, err := h.bc.Run(context.Background(), []string{"a", "b"}, RunOptions{
		OutputPath: h.output,
		ShouldStop: func() bool { return stop },
	})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, []string{"a"}, h.runner.calls, "取消后不应开始下一个目标")

	cp, err := h.store.Load(summary.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPaused, cp.Status)
	tp := cp.Progress("a")
	require.NotNil(t, tp)
	assert.Equal(t, []string{"u1", "u2", "u3"}, tp.FetchedURLs)
	assert.Len(t, cp.RecentRecords, 3)

	a := h.artifact(t)
	assert.Len(t, a.Records, 3)
	assert.True(t, a.CrawlInfo.Interrupted)
	assert.Equal(t, models.JobPaused, a.CrawlInfo.Status)
}

func TestBatchCoordinator_StopBeforeFirstTarget(t *testing.T) {
	h := newHarness(t, nil)
	summary, err := h.bc.Run(context.Background(), []string{"a"}, RunOptions{
		OutputPath: h.output,
		ShouldStop: func() bool { return true },
	})
	require.NoError(t, err)
	assert.Empty(t, h.runner.calls)
	assert.True(t, summary.Cancelled)

	cp, err := h.store.Load(summary.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPaused, cp.Status)
	assert.Empty(t, h.artifact(t).Records)
}

func TestBatchCoordinator_ContextCancelledIsNotFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, map[string]crawlFunc{
		"a": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			cancel()
			return crawlers.TargetResult{}, context.Canceled
		},
	})

	summary, err := h.bc.Run(ctx, []string{"a", "b"}, RunOptions{OutputPath: h.output})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"a"}, h.runner.calls)
}

func TestBatchCoordinator_ProgressIsFractional(t *testing.T) {
	h := newHarness(t, nil)
	var points [][2]float64
	_, err := h.bc.Run(context.Background(), []string{"a", "b"}, RunOptions{
		OutputPath: h.output,
		OnProgress: func(current, total float64) {
			points = append(points, [2]float64{current, total})
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, points)
	assert.Contains(t, points, [2]float64{0.5, 2})
	assert.Contains(t, points, [2]float64{1.5, 2})
	assert.Equal(t, [2]float64{2, 2}, points[len(points)-1])
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i][0], points[i-1][0])
	}
}

func TestBatchCoordinator_RunValidation(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.bc.Run(context.Background(), []string{" ", ""}, RunOptions{OutputPath: h.output})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = h.bc.Run(context.Background(), []string{"a"}, RunOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, h.runner.calls)
}

// seedCheckpoint 写入一个已有进度的检查点
func seedCheckpoint(t *testing.T, h *harness, progress ...*models.TargetProgress) string {
	t.Helper()
	ids := make([]string, 0, len(progress))
	for _, tp := range progress {
		ids = append(ids, tp.TargetID)
	}
	cp := models.NewJobCheckpoint(ids, CrawlTypeBatch)
	cp.OutputPath = h.output
	cp.Status = models.JobPaused
	for _, tp := range progress {
		cp.Upsert(tp)
	}
	id, err := h.store.Create(cp)
	require.NoError(t, err)
	return id
}

func completedProgress(targetID string) *models.TargetProgress {
	tp := models.NewTargetProgress(targetID)
	tp.DiscoveredURLs = urlsFor(targetID, 2)
	for _, u := range tp.DiscoveredURLs {
		tp.MarkFetched(u)
	}
	tp.RefreshStatus()
	return tp
}

func TestBatchCoordinator_ResumeFetchesOnlyRemaining(t *testing.T) {
	h := newHarness(t, nil)

	partial := models.NewTargetProgress("b")
	partial.DiscoveredURLs = []string{"b1", "b2", "b3"}
	partial.MarkFetched("b1")
	partial.RefreshStatus()
	id := seedCheckpoint(t, h, completedProgress("a"), partial)

	summary, err := h.bc.Resume(context.Background(), id, RunOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Resumed)
	assert.Equal(t, []string{"b"}, h.runner.calls)

	assert.Equal(t, []string{"b2", "b3"}, h.runner.pending["b"])

	cp, err := h.store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, cp.Status)
	assert.Equal(t, 2, cp.ProcessedTargets)
	assert.Equal(t, []string{"b1", "b2", "b3"}, cp.Progress("b").FetchedURLs)

	a := h.artifact(t)
	assert.True(t, a.CrawlInfo.Resumed)
	ids := make([]string, 0, len(a.Records))
	for _, p := range a.Records {
		ids = append(ids, p.RecordID)
	}
	assert.Equal(t, []string{"b2", "b3"}, ids)
}

func TestBatchCoordinator_ResumeNothingLeft(t *testing.T) {
	h := newHarness(t, nil)
	id := seedCheckpoint(t, h, completedProgress("a"), completedProgress("b"))

	summary, err := h.bc.Resume(context.Background(), id, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, h.runner.calls)
	assert.Equal(t, 2, summary.Completed)
}

func TestBatchCoordinator_ResumeDistrustsStaleCompleted(t *testing.T) {
	h := newHarness(t, nil)
	stale := models.NewTargetProgress("a")
	stale.DiscoveredURLs = []string{"a1", "a2"}
	stale.MarkFetched("a1")
	stale.Status = models.TargetCompleted
	now := time.Now()
	stale.CompletedAt = &now

	cp := models.NewJobCheckpoint([]string{"a"}, CrawlTypeSingle)
	cp.OutputPath = h.output
	cp.TargetProgress = []*models.TargetProgress{stale}
	id, err := h.store.Create(cp)
	require.NoError(t, err)

	_, err = h.bc.Resume(context.Background(), id, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, h.runner.calls)
}

func TestBatchCoordinator_ResumeMissingCheckpoint(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.bc.Resume(context.Background(), "batch_19990101_000000", RunOptions{OutputPath: h.output})
	assert.ErrorIs(t, err, models.ErrCheckpointCorrupt)
	assert.Empty(t, h.runner.calls)
}

// loadOnly 读取测试中唯一的检查点
func (h *harness) loadOnly(t *testing.T) *models.JobCheckpoint {
	t.Helper()
	ids, err := h.store.List()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	cp, err := h.store.Load(ids[0])
	require.NoError(t, err)
	return cp
}

func TestBatchCoordinator_WriteFailureKeepsRecordsRemaining(t *testing.T) {
	h := newHarness(t, map[string]crawlFunc{
		"a": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			return fetchAll(req, urlsFor("a", 1))
		},
	})
	// 输出文件的父路径是普通文件,导出文件无法写入
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	h.output = filepath.Join(blocker, "result.json")

	_, err := h.bc.Run(context.Background(), []string{"a"}, RunOptions{OutputPath: h.output})
	require.Error(t, err)

	cp := h.loadOnly(t)
	tp := cp.Progress("a")
	require.NotNil(t, tp)
	assert.Empty(t, tp.FetchedURLs)
	assert.NotEqual(t, models.TargetCompleted, tp.Status)
	assert.Equal(t, []string{"a"}, cp.RemainingTargets())
	assert.Equal(t, models.JobPaused, cp.Status)
	assert.Equal(t, 0, cp.ProcessedTargets)

	data, err := os.ReadFile(blocker)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestBatchCoordinator_FailedSaveRetriedLater(t *testing.T) {
	h := newHarness(t, nil)
	blocker := filepath.Dir(h.output)
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	urls := urlsFor("a", 3)
	h.runner.behaviors = map[string]crawlFunc{
		"a": func(req crawlers.TargetRequest) (crawlers.TargetResult, error) {
			tp := models.NewTargetProgress(req.TargetID)
			tp.DiscoveredURLs = urls
			batch := []models.Post{recordFor(urls[0]), recordFor(urls[1])}
			tp.MarkFetched(urls[0])
			tp.MarkFetched(urls[1])
			require.Error(t, req.Save(batch, tp))

			// 写入失败后检查点中不应出现这两篇
			stored := h.loadOnly(t)
			if p := stored.Progress("a"); p != nil {
				assert.Empty(t, p.FetchedURLs)
			}

			require.NoError(t, os.Remove(blocker))
			tp.MarkFetched(urls[2])
			batch = append(batch, recordFor(urls[2]))
			tp.RefreshStatus()
			return crawlers.TargetResult{Progress: tp, Unsaved: batch, Fetched: 3}, nil
		},
	}

	summary, err := h.bc.Run(context.Background(), []string{"a"}, RunOptions{OutputPath: h.output})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 3, summary.TotalRecords)

	cp := h.loadOnly(t)
	assert.Equal(t, models.JobCompleted, cp.Status)
	assert.ElementsMatch(t, urls, cp.Progress("a").FetchedURLs)
	assert.Empty(t, cp.RemainingTargets())
	assert.Len(t, h.artifact(t).Records, 3)
}
