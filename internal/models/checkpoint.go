package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxRecentRecords 检查点中保留的最近文章数
const MaxRecentRecords = 100

// TargetProgress 单个目标的进度
// 已抓取集合在运行中只通过 MarkFetched 增长, 加载时由 Sanitize 清理
type TargetProgress struct {
	TargetID       string       `json:"target_id"`
	Status         TargetStatus `json:"status"`
	RecordsFetched int          `json:"records_fetched"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	DiscoveredURLs []string     `json:"discovered_urls"`
	FetchedURLs    []string     `json:"fetched_urls"`
	FailedURLs     []string     `json:"failed_urls,omitempty"`
	Error          string       `json:"error,omitempty"`

	fetchedIndex map[string]struct{}
}

// NewTargetProgress 创建目标进度
func NewTargetProgress(targetID string) *TargetProgress {
	return &TargetProgress{
		TargetID:       targetID,
		Status:         TargetPending,
		StartedAt:      time.Now(),
		DiscoveredURLs: []string{},
		FetchedURLs:    []string{},
	}
}

func (tp *TargetProgress) index() map[string]struct{} {
	if tp.fetchedIndex == nil || len(tp.fetchedIndex) != len(tp.FetchedURLs) {
		tp.fetchedIndex = make(map[string]struct{}, len(tp.FetchedURLs))
		for _, u := range tp.FetchedURLs {
			tp.fetchedIndex[u] = struct{}{}
		}
	}
	return tp.fetchedIndex
}

// HasFetched 是否已抓取
func (tp *TargetProgress) HasFetched(url string) bool {
	_, ok := tp.index()[url]
	return ok
}

// MarkFetched 记录一个已抓取URL,重复调用无副作用
func (tp *TargetProgress) MarkFetched(url string) {
	idx := tp.index()
	if _, ok := idx[url]; ok {
		return
	}
	idx[url] = struct{}{}
	tp.FetchedURLs = append(tp.FetchedURLs, url)
	tp.RecordsFetched = len(tp.FetchedURLs)
}

// MarkFailed 记录一个抓取失败的URL(仅用于诊断)
func (tp *TargetProgress) MarkFailed(url string) {
	for _, u := range tp.FailedURLs {
		if u == url {
			return
		}
	}
	tp.FailedURLs = append(tp.FailedURLs, url)
}

// Remaining 按发现顺序返回未抓取的URL
func (tp *TargetProgress) Remaining() []string {
	remaining := make([]string, 0, len(tp.DiscoveredURLs))
	for _, u := range tp.DiscoveredURLs {
		if !tp.HasFetched(u) {
			remaining = append(remaining, u)
		}
	}
	return remaining
}

// IsComplete 完成条件: 发现列表非空,且其中每个URL都已抓取
func (tp *TargetProgress) IsComplete() bool {
	if len(tp.DiscoveredURLs) == 0 {
		return false
	}
	for _, u := range tp.DiscoveredURLs {
		if !tp.HasFetched(u) {
			return false
		}
	}
	return true
}

// Sanitize 去除重复的已抓取URL和不在发现列表中的URL, 返回去除的条数
func (tp *TargetProgress) Sanitize() int {
	discovered := make(map[string]struct{}, len(tp.DiscoveredURLs))
	for _, u := range tp.DiscoveredURLs {
		discovered[u] = struct{}{}
	}
	seen := make(map[string]struct{}, len(tp.FetchedURLs))
	kept := make([]string, 0, len(tp.FetchedURLs))
	for _, u := range tp.FetchedURLs {
		if _, ok := discovered[u]; !ok {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		kept = append(kept, u)
	}
	removed := len(tp.FetchedURLs) - len(kept)
	tp.FetchedURLs = kept
	tp.RecordsFetched = len(kept)
	tp.fetchedIndex = nil
	return removed
}

// Clone 深拷贝
func (tp *TargetProgress) Clone() *TargetProgress {
	c := *tp
	c.DiscoveredURLs = append([]string{}, tp.DiscoveredURLs...)
	c.FetchedURLs = append([]string{}, tp.FetchedURLs...)
	c.FailedURLs = append([]string(nil), tp.FailedURLs...)
	if tp.CompletedAt != nil {
		at := *tp.CompletedAt
		c.CompletedAt = &at
	}
	c.fetchedIndex = nil
	return &c
}

// WithoutFetched 返回去掉指定已抓取URL后的副本,并重新计算状态
// 没有需要去掉的URL时返回自身
func (tp *TargetProgress) WithoutFetched(urls map[string]struct{}) *TargetProgress {
	hit := false
	for _, u := range tp.FetchedURLs {
		if _, ok := urls[u]; ok {
			hit = true
			break
		}
	}
	if !hit {
		return tp
	}
	c := tp.Clone()
	kept := c.FetchedURLs[:0]
	for _, u := range c.FetchedURLs {
		if _, ok := urls[u]; !ok {
			kept = append(kept, u)
		}
	}
	c.FetchedURLs = kept
	c.RecordsFetched = len(kept)
	c.RefreshStatus()
	return c
}

// RefreshStatus 按完成条件重新计算状态
// failed 状态由调用方显式设置,这里不覆盖
func (tp *TargetProgress) RefreshStatus() {
	if tp.Status == TargetFailed {
		return
	}
	if tp.IsComplete() {
		if tp.Status != TargetCompleted || tp.CompletedAt == nil {
			now := time.Now()
			tp.CompletedAt = &now
		}
		tp.Status = TargetCompleted
		return
	}
	tp.Status = TargetInProgress
	tp.CompletedAt = nil
}

// Revalidate 检查标记为completed但不满足完成条件的记录
// 返回true表示状态被降级
func (tp *TargetProgress) Revalidate() bool {
	tp.RecordsFetched = len(tp.FetchedURLs)
	if tp.Status == TargetCompleted && !tp.IsComplete() {
		tp.Status = TargetInProgress
		tp.CompletedAt = nil
		return true
	}
	return false
}

// JobCheckpoint 批量任务检查点
type JobCheckpoint struct {
	CheckpointID     string            `json:"checkpoint_id"`
	RunID            string            `json:"run_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	LastUpdated      time.Time         `json:"last_updated"`
	CrawlType        string            `json:"crawl_type"`
	OutputPath       string            `json:"output_path,omitempty"`
	TargetIDs        []string          `json:"target_ids"`
	TotalTargets     int               `json:"total_targets"`
	ProcessedTargets int               `json:"processed_targets"`
	FailedTargets    int               `json:"failed_targets"`
	Status           JobStatus         `json:"status"`
	TargetProgress   []*TargetProgress `json:"target_progress"`
	RecentRecords    []Post            `json:"recent_records,omitempty"`
}

// NewJobCheckpoint 创建检查点(ID由存储层分配)
func NewJobCheckpoint(targetIDs []string, crawlType string) *JobCheckpoint {
	now := time.Now()
	ids := append([]string(nil), targetIDs...)
	return &JobCheckpoint{
		CreatedAt:      now,
		LastUpdated:    now,
		CrawlType:      crawlType,
		TargetIDs:      ids,
		TotalTargets:   len(ids),
		Status:         JobRunning,
		TargetProgress: []*TargetProgress{},
	}
}

// Progress 查找目标进度,不存在返回nil
func (c *JobCheckpoint) Progress(targetID string) *TargetProgress {
	for _, tp := range c.TargetProgress {
		if tp.TargetID == targetID {
			return tp
		}
	}
	return nil
}

// Upsert 更新或插入目标进度,并重新统计计数
func (c *JobCheckpoint) Upsert(tp *TargetProgress) {
	replaced := false
	for i, existing := range c.TargetProgress {
		if existing.TargetID == tp.TargetID {
			c.TargetProgress[i] = tp
			replaced = true
			break
		}
	}
	if !replaced {
		c.TargetProgress = append(c.TargetProgress, tp)
	}
	c.Recount()
}

// Recount 从目标进度重新统计计数
func (c *JobCheckpoint) Recount() {
	processed, failed := 0, 0
	for _, tp := range c.TargetProgress {
		switch tp.Status {
		case TargetCompleted:
			processed++
		case TargetFailed:
			failed++
		}
	}
	c.ProcessedTargets = processed
	c.FailedTargets = failed
	c.TotalTargets = len(c.TargetIDs)
}

// Revalidate 对所有目标执行完成条件检查,返回被降级的目标ID
func (c *JobCheckpoint) Revalidate() []string {
	var stale []string
	for _, tp := range c.TargetProgress {
		if tp.Revalidate() {
			stale = append(stale, tp.TargetID)
		}
	}
	c.Recount()
	return stale
}

// Clone 拷贝检查点,目标进度为深拷贝
func (c *JobCheckpoint) Clone() *JobCheckpoint {
	cp := *c
	cp.TargetIDs = append([]string{}, c.TargetIDs...)
	cp.TargetProgress = make([]*TargetProgress, len(c.TargetProgress))
	for i, tp := range c.TargetProgress {
		cp.TargetProgress[i] = tp.Clone()
	}
	cp.RecentRecords = append([]Post(nil), c.RecentRecords...)
	return &cp
}

// RemainingTargets 按原顺序返回未完成的目标
func (c *JobCheckpoint) RemainingTargets() []string {
	remaining := make([]string, 0, len(c.TargetIDs))
	for _, id := range c.TargetIDs {
		tp := c.Progress(id)
		if tp != nil && tp.IsComplete() {
			continue
		}
		remaining = append(remaining, id)
	}
	return remaining
}

// MergeRecentRecords 追加最近文章,按record_id去重(新的覆盖旧的),只保留最后100条
func (c *JobCheckpoint) MergeRecentRecords(records []Post) {
	merged := make([]Post, 0, len(c.RecentRecords)+len(records))
	merged = append(merged, c.RecentRecords...)
	merged = append(merged, records...)

	lastIndex := make(map[string]int, len(merged))
	for i, p := range merged {
		lastIndex[p.DedupKey()] = i
	}
	deduped := make([]Post, 0, len(lastIndex))
	for i, p := range merged {
		if lastIndex[p.DedupKey()] == i {
			deduped = append(deduped, p)
		}
	}
	if len(deduped) > MaxRecentRecords {
		deduped = deduped[len(deduped)-MaxRecentRecords:]
	}
	c.RecentRecords = deduped
}

// Summary 便于日志输出
func (c *JobCheckpoint) Summary() string {
	return fmt.Sprintf("%s status=%s targets=%d processed=%d failed=%d",
		c.CheckpointID, c.Status, c.TotalTargets, c.ProcessedTargets, c.FailedTargets)
}

// ToJSON 序列化为JSON
func (c *JobCheckpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *JobCheckpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}
