package storage

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// ResultWriter 导出文件的唯一写入者
// 每次写入都是整体重写,文件中不会出现半条记录
type ResultWriter struct {
	sortByDate bool
	now        func() time.Time
}

// NewResultWriter 创建导出写入器
func NewResultWriter(sortByDate bool) *ResultWriter {
	return &ResultWriter{sortByDate: sortByDate, now: time.Now}
}

// Load 读取导出文件
func (w *ResultWriter) Load(path string) (*models.ExportArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact models.ExportArtifact
	if err := artifact.FromJSON(data); err != nil {
		return nil, models.NewCrawlError(models.KindParsing, "", err, "解析导出文件失败 [%s]", path)
	}
	return &artifact, nil
}

// WriteStats 一次写入的结果
type WriteStats struct {
	Total int // 文件中的文章总数
	Added int // 本次新增
}

// Write 写入文章
// append模式下保留已有文章,新批次中ID已存在的文章被丢弃
func (w *ResultWriter) Write(path string, records []models.Post, info models.CrawlInfo, appendMode bool) (WriteStats, error) {
	var existing []models.Post
	if appendMode {
		artifact, err := w.Load(path)
		switch {
		case err == nil:
			existing = artifact.Records
			if info.CrawlID == "" {
				info.CrawlID = artifact.CrawlInfo.CrawlID
			}
		case errors.Is(err, os.ErrNotExist):
		case models.KindOf(err) != models.KindParsing:
			return WriteStats{}, fmt.Errorf("读取导出文件失败 [%s]: %w", path, err)
		default:
			backup := fmt.Sprintf("%s.corrupt-%s", path, w.now().Format(CheckpointIDLayout))
			if renameErr := os.Rename(path, backup); renameErr != nil {
				return WriteStats{}, fmt.Errorf("导出文件损坏且无法备份 [%s]: %w", path, err)
			}
			utils.Warnf("导出文件损坏,已备份到 %s: %v", backup, err)
		}
	}

	merged, added := mergeRecords(existing, records)
	if skipped := len(records) - added; skipped > 0 {
		utils.Debugf("跳过 %d 篇重复文章", skipped)
	}

	if w.sortByDate {
		SortByPublishedDesc(merged)
		info.SortOrder = models.SortDateDesc
	} else {
		info.SortOrder = models.SortCrawlOrder
	}
	info.TotalRecords = len(merged)
	if info.CrawlTimestamp.IsZero() {
		info.CrawlTimestamp = w.now()
	}

	artifact := models.ExportArtifact{CrawlInfo: info, Records: merged}
	data, err := artifact.ToJSON()
	if err != nil {
		return WriteStats{}, fmt.Errorf("序列化导出文件失败: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data); err != nil {
		return WriteStats{}, fmt.Errorf("写入导出文件失败 [%s]: %w", path, err)
	}
	return WriteStats{Total: len(merged), Added: added}, nil
}

// mergeRecords 按去重键合并,先写入者优先(批次内部同样适用)
func mergeRecords(existing, incoming []models.Post) ([]models.Post, int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]models.Post, 0, len(existing)+len(incoming))
	for _, p := range existing {
		key := p.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, p)
	}
	added := 0
	for _, p := range incoming {
		key := p.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, p)
		added++
	}
	return merged, added
}

// SortByPublishedDesc 按发布日期倒序,无法解析的日期视为最早,同日期保持原顺序
func SortByPublishedDesc(records []models.Post) {
	keys := make([]time.Time, len(records))
	for i := range records {
		if t, ok := models.ParsePublishedAt(records[i].PublishedAt); ok {
			keys[i] = t
		}
	}
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]].After(keys[idx[b]])
	})
	sorted := make([]models.Post, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}
