// Package storage 负责检查点和导出文件的持久化
//
// 检查点存储有两种实现: 每个检查点一个JSON文件(默认),或一个SQLite数据库。
// 两者的写入都是整体替换,不做增量追加。
package storage

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// CheckpointIDLayout 检查点ID的时间格式
const CheckpointIDLayout = "20060102_150405"

// CheckpointStore 检查点的唯一写入者
type CheckpointStore interface {
	// Create 分配检查点ID并写入初始状态
	Create(cp *models.JobCheckpoint) (string, error)
	// Update 读取当前内容,合并任务字段和最近文章后整体重写
	Update(id string, cp *models.JobCheckpoint, recent []models.Post) error
	// Load 读取检查点,不存在返回NotFound,无法解析返回CheckpointCorrupt
	Load(id string) (*models.JobCheckpoint, error)
	// List 按创建时间列出检查点ID
	List() ([]string, error)
	Close() error
}

// newCheckpointID 基于时间生成ID, exists用于避免同一秒内的冲突
func newCheckpointID(now time.Time, exists func(id string) (bool, error)) (string, error) {
	base := "batch_" + now.Format(CheckpointIDLayout)
	id := base
	for n := 2; ; n++ {
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// mergeCheckpoint 以内存中的任务状态为准,保留原创建时间并合并最近文章
func mergeCheckpoint(id string, stored, incoming *models.JobCheckpoint, recent []models.Post, now time.Time) *models.JobCheckpoint {
	merged := *incoming
	merged.CheckpointID = id
	merged.RecentRecords = nil
	if stored != nil {
		if !stored.CreatedAt.IsZero() {
			merged.CreatedAt = stored.CreatedAt
		}
		merged.RecentRecords = append([]models.Post(nil), stored.RecentRecords...)
	}
	if len(incoming.RecentRecords) > 0 {
		merged.MergeRecentRecords(incoming.RecentRecords)
	}
	merged.MergeRecentRecords(recent)
	merged.LastUpdated = now
	merged.Recount()
	return &merged
}

// decodeCheckpoint 反序列化并修复加载到的状态, 返回修复说明
// 已抓取URL按集合处理: 去重并去掉不在发现列表中的项, 之后重新检查完成条件
func decodeCheckpoint(id string, data []byte) (*models.JobCheckpoint, []string, error) {
	var cp models.JobCheckpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, nil, models.NewCrawlError(models.KindCheckpointCorrupt, id, err, "检查点无法解析")
	}
	if cp.CheckpointID == "" {
		cp.CheckpointID = id
	}

	var notes []string
	progress := cp.TargetProgress[:0]
	for _, tp := range cp.TargetProgress {
		if tp == nil || tp.TargetID == "" {
			notes = append(notes, "包含无效的目标进度,已忽略")
			continue
		}
		if tp.DiscoveredURLs == nil {
			tp.DiscoveredURLs = []string{}
		}
		if removed := tp.Sanitize(); removed > 0 {
			notes = append(notes, fmt.Sprintf("目标 %s 有 %d 条重复或未发现的已抓取URL,已移除", tp.TargetID, removed))
		}
		progress = append(progress, tp)
	}
	cp.TargetProgress = progress

	for _, target := range cp.Revalidate() {
		notes = append(notes, fmt.Sprintf("目标 %s 标记为completed但未抓取全部发现的URL,按未完成处理", target))
	}
	return &cp, notes, nil
}

// loadCheckpoint 供 Load 使用, 修复说明以警告输出
func loadCheckpoint(id string, data []byte) (*models.JobCheckpoint, error) {
	cp, notes, err := decodeCheckpoint(id, data)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		utils.Warnf("检查点 %s: %s", id, note)
	}
	return cp, nil
}
