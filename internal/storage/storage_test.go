package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(id, title, published string) models.Post {
	return models.Post{
		RecordID:    id,
		Title:       title,
		PublishedAt: published,
		SourceURL:   "https://m.blog.naver.com/writer/" + id,
		Body:        models.Body{RawMarkup: "<p>raw</p>", PlainText: "body", Markdown: "body"},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestResultWriter_AppendIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewResultWriter(false)
	batch := []models.Post{post("1", "a", ""), post("2", "b", ""), post("3", "c", "")}

	stats, err := w.Write(path, batch, models.CrawlInfo{CrawlType: "batch"}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)

	stats, err = w.Write(path, batch, models.CrawlInfo{CrawlType: "batch"}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)

	artifact, err := w.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, artifact.CrawlInfo.TotalRecords)
	ids := make([]string, 0, len(artifact.Records))
	for _, p := range artifact.Records {
		ids = append(ids, p.RecordID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestResultWriter_FirstWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewResultWriter(false)

	_, err := w.Write(path, []models.Post{post("123", "original", "")}, models.CrawlInfo{}, true)
	require.NoError(t, err)

	stats, err := w.Write(path, []models.Post{post("123", "changed", ""), post("124", "new", "")}, models.CrawlInfo{}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Added)

	artifact, err := w.Load(path)
	require.NoError(t, err)
	require.Len(t, artifact.Records, 2)
	assert.Equal(t, "original", artifact.Records[0].Title)
	assert.Equal(t, "124", artifact.Records[1].RecordID)
}

func TestResultWriter_DuplicatesInsideBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	stats, err := NewResultWriter(false).Write(path,
		[]models.Post{post("9", "first", ""), post("9", "second", "")}, models.CrawlInfo{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestResultWriter_ReplaceMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewResultWriter(false)
	_, err := w.Write(path, []models.Post{post("1", "a", "")}, models.CrawlInfo{}, false)
	require.NoError(t, err)

	stats, err := w.Write(path, []models.Post{post("2", "b", "")}, models.CrawlInfo{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	artifact, err := w.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2", artifact.Records[0].RecordID)
}

func TestResultWriter_SortByDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewResultWriter(true)
	batch := []models.Post{
		post("old", "", "2023. 5. 1. 09:00"),
		post("unknown", "", "3시간 전"),
		post("new", "", "2024. 1. 15. 10:30"),
		post("mid", "", "2023-12-31"),
		post("empty", "", ""),
	}
	_, err := w.Write(path, batch, models.CrawlInfo{}, false)
	require.NoError(t, err)

	artifact, err := w.Load(path)
	require.NoError(t, err)
	assert.Equal(t, models.SortDateDesc, artifact.CrawlInfo.SortOrder)
	var order []string
	for _, p := range artifact.Records {
		order = append(order, p.RecordID)
	}
	assert.Equal(t, []string{"new", "mid", "old", "unknown", "empty"}, order)
}

func TestResultWriter_OmitsExtractionOnlyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	_, err := NewResultWriter(false).Write(path, []models.Post{post("1", "a", "")}, models.CrawlInfo{}, false)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<p>raw</p>")
	assert.Contains(t, string(data), `"sort_order": "crawl_order"`)
}

func TestResultWriter_CorruptArtifactIsBackedUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	w := NewResultWriter(false)
	w.now = fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	stats, err := w.Write(path, []models.Post{post("1", "a", "")}, models.CrawlInfo{}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	_, err = os.Stat(path + ".corrupt-20240301_120000")
	assert.NoError(t, err)
}

func TestResultWriter_UnreadablePathIsNotBackedUp(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	w := NewResultWriter(false)
	_, err := w.Write(filepath.Join(blocker, "out.json"), []models.Post{post("1", "a", "")}, models.CrawlInfo{}, true)
	require.Error(t, err)

	// 读取失败不等于文件损坏,不应尝试备份
	data, err := os.ReadFile(blocker)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func newFileStore(t *testing.T, now time.Time) *FileCheckpointStore {
	t.Helper()
	s, err := NewFileCheckpointStore(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)
	s.now = fixedClock(now)
	return s
}

func TestFileCheckpointStore_CreateAssignsUniqueIDs(t *testing.T) {
	s := newFileStore(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	first, err := s.Create(models.NewJobCheckpoint([]string{"a"}, "batch"))
	require.NoError(t, err)
	second, err := s.Create(models.NewJobCheckpoint([]string{"b"}, "batch"))
	require.NoError(t, err)

	assert.Equal(t, "batch_20240102_030405", first)
	assert.Equal(t, "batch_20240102_030405_2", second)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, ids)
}

func TestFileCheckpointStore_UpdateMergesRecentRecords(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newFileStore(t, created)

	cp := models.NewJobCheckpoint([]string{"writer"}, "batch")
	cp.CreatedAt = created
	id, err := s.Create(cp)
	require.NoError(t, err)

	// 模拟另一个进程持有的副本(创建时间不同)
	fresh := models.NewJobCheckpoint([]string{"writer"}, "batch")
	tp := models.NewTargetProgress("writer")
	tp.DiscoveredURLs = []string{"u1", "u2"}
	tp.MarkFetched("u1")
	tp.RefreshStatus()
	fresh.Upsert(tp)

	s.now = fixedClock(created.Add(time.Hour))
	require.NoError(t, s.Update(id, fresh, []models.Post{post("1", "a", ""), post("2", "b", "")}))
	require.NoError(t, s.Update(id, fresh, []models.Post{post("2", "b2", ""), post("3", "c", "")}))

	loaded, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.CheckpointID)
	assert.True(t, loaded.CreatedAt.Equal(created))
	assert.True(t, loaded.LastUpdated.Equal(created.Add(time.Hour)))
	require.Len(t, loaded.TargetProgress, 1)
	assert.Equal(t, []string{"u1"}, loaded.TargetProgress[0].FetchedURLs)

	var ids []string
	for _, p := range loaded.RecentRecords {
		ids = append(ids, p.RecordID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, "b2", loaded.RecentRecords[1].Title)
}

func TestFileCheckpointStore_RecentRecordsBounded(t *testing.T) {
	s := newFileStore(t, time.Now())
	cp := models.NewJobCheckpoint([]string{"writer"}, "batch")
	id, err := s.Create(cp)
	require.NoError(t, err)

	batch := make([]models.Post, 0, 150)
	for i := 0; i < 150; i++ {
		batch = append(batch, post(strings.Repeat("x", i+1), "", ""))
	}
	require.NoError(t, s.Update(id, cp, batch))

	loaded, err := s.Load(id)
	require.NoError(t, err)
	require.Len(t, loaded.RecentRecords, models.MaxRecentRecords)
	assert.Equal(t, strings.Repeat("x", 150), loaded.RecentRecords[99].RecordID)
}

func TestFileCheckpointStore_Load(t *testing.T) {
	t.Run("不存在", func(t *testing.T) {
		s := newFileStore(t, time.Now())
		_, err := s.Load("batch_missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("无法解析", func(t *testing.T) {
		s := newFileStore(t, time.Now())
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{"), 0644))
		_, err := s.Load("broken")
		assert.ErrorIs(t, err, models.ErrCheckpointCorrupt)
	})

	t.Run("按路径加载", func(t *testing.T) {
		s := newFileStore(t, time.Now())
		id, err := s.Create(models.NewJobCheckpoint([]string{"a"}, "batch"))
		require.NoError(t, err)
		loaded, err := s.Load(filepath.Join(s.Dir(), id+".json"))
		require.NoError(t, err)
		assert.Equal(t, id, loaded.CheckpointID)
	})

	t.Run("降级不满足完成条件的completed", func(t *testing.T) {
		s := newFileStore(t, time.Now())
		content := `{
			"checkpoint_id": "stale",
			"status": "running",
			"target_ids": ["a", "b"],
			"target_progress": [
				{"target_id": "a", "status": "completed", "discovered_urls": ["u1", "u2"], "fetched_urls": ["u1"]},
				{"target_id": "b", "status": "completed", "discovered_urls": [], "fetched_urls": []},
				null
			]
		}`
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "stale.json"), []byte(content), 0644))

		loaded, err := s.Load("stale")
		require.NoError(t, err)
		require.Len(t, loaded.TargetProgress, 2)
		for _, tp := range loaded.TargetProgress {
			assert.Equal(t, models.TargetInProgress, tp.Status, tp.TargetID)
		}
		assert.Equal(t, 0, loaded.ProcessedTargets)
		assert.Equal(t, []string{"a", "b"}, loaded.RemainingTargets())
	})

	t.Run("重复的已抓取URL按集合处理", func(t *testing.T) {
		s := newFileStore(t, time.Now())
		content := `{
			"checkpoint_id": "dup",
			"status": "paused",
			"target_ids": ["a"],
			"target_progress": [
				{"target_id": "a", "status": "completed", "discovered_urls": ["A", "B"], "fetched_urls": ["A", "A", "Z"]}
			]
		}`
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "dup.json"), []byte(content), 0644))

		loaded, err := s.Load("dup")
		require.NoError(t, err)
		tp := loaded.Progress("a")
		require.NotNil(t, tp)
		assert.Equal(t, []string{"A"}, tp.FetchedURLs)
		assert.Equal(t, 1, tp.RecordsFetched)
		assert.Equal(t, models.TargetInProgress, tp.Status)
		assert.Equal(t, []string{"B"}, tp.Remaining())
		assert.Equal(t, []string{"a"}, loaded.RemainingTargets())
	})
}

func TestDecodeCheckpoint_Notes(t *testing.T) {
	content := `{
		"target_ids": ["a"],
		"target_progress": [
			{"target_id": "a", "status": "completed", "discovered_urls": ["A", "B"], "fetched_urls": ["A", "A"]},
			null
		]
	}`
	cp, notes, err := decodeCheckpoint("batch_x", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, "batch_x", cp.CheckpointID)
	assert.Len(t, notes, 3)

	_, _, err = decodeCheckpoint("batch_x", []byte("not json"))
	assert.ErrorIs(t, err, models.ErrCheckpointCorrupt)
}

func TestFileCheckpointStore_UpdateDoesNotRepeatLoadWarnings(t *testing.T) {
	require.NoError(t, utils.InitLogger(utils.LogConfig{Level: "info", LogDir: t.TempDir(), NoConsole: true}))
	s := newFileStore(t, time.Now())
	content := `{
		"checkpoint_id": "stale",
		"status": "running",
		"target_ids": ["a"],
		"target_progress": [
			{"target_id": "a", "status": "completed", "discovered_urls": ["u1", "u2"], "fetched_urls": ["u1"]}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "stale.json"), []byte(content), 0644))

	sink := utils.NewLogSink(64, zerolog.WarnLevel)
	utils.AttachLogSink(sink)
	defer utils.DetachLogSink(sink)

	cp, err := s.Load("stale")
	require.NoError(t, err)
	require.Len(t, sink.Events(), 1)
	<-sink.Events()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update("stale", cp, nil))
	}
	assert.Len(t, sink.Events(), 0)
}

func TestSQLiteCheckpointStore_RoundTrip(t *testing.T) {
	s, err := NewSQLiteCheckpointStore(filepath.Join(t.TempDir(), "db", DefaultSQLiteFile))
	require.NoError(t, err)
	defer s.Close()
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	s.now = fixedClock(created)

	cp := models.NewJobCheckpoint([]string{"a", "b"}, "batch")
	cp.CreatedAt = created
	id, err := s.Create(cp)
	require.NoError(t, err)
	assert.Equal(t, "batch_20240601_080000", id)

	second, err := s.Create(models.NewJobCheckpoint([]string{"c"}, "batch"))
	require.NoError(t, err)
	assert.Equal(t, "batch_20240601_080000_2", second)

	tp := models.NewTargetProgress("a")
	tp.DiscoveredURLs = []string{"u1"}
	tp.MarkFetched("u1")
	tp.RefreshStatus()
	cp.Upsert(tp)
	cp.Status = models.JobPaused
	require.NoError(t, s.Update(id, cp, []models.Post{post("1", "a", "")}))

	loaded, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, models.JobPaused, loaded.Status)
	assert.Equal(t, 1, loaded.ProcessedTargets)
	assert.Len(t, loaded.RecentRecords, 1)
	assert.Equal(t, []string{"b"}, loaded.RemainingTargets())

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{id, second}, ids)

	_, err = s.Load("batch_missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
