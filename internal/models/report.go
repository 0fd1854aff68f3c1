package models

import (
	"encoding/json"
	"time"
)

// RunReport 一次运行结束后的报告
type RunReport struct {
	// 任务信息
	CheckpointID string    `json:"checkpoint_id"`
	RunID        string    `json:"run_id,omitempty"`
	CrawlType    string    `json:"crawl_type"`
	Status       JobStatus `json:"status"`
	Resumed      bool      `json:"resumed"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	TotalTargets     int `json:"total_targets"`
	ProcessedTargets int `json:"processed_targets"`
	FailedTargets    int `json:"failed_targets"`
	NewRecords       int `json:"new_records"`
	TotalRecords     int `json:"total_records"`

	// 目标明细
	Targets []TargetReport `json:"targets"`

	// 输出路径
	OutputPath string `json:"output_path"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// TargetReport 单个目标的结果
type TargetReport struct {
	TargetID   string       `json:"target_id"`
	Status     TargetStatus `json:"status"`
	Discovered int          `json:"discovered"`
	Fetched    int          `json:"fetched"`
	FailedURLs []string     `json:"failed_urls,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// NewRunReport 由检查点生成报告,没有进度记录的目标按pending列出
func NewRunReport(cp *JobCheckpoint, start, end time.Time) *RunReport {
	report := &RunReport{
		CheckpointID:     cp.CheckpointID,
		RunID:            cp.RunID,
		CrawlType:        cp.CrawlType,
		Status:           cp.Status,
		StartTime:        start,
		EndTime:          end,
		Duration:         end.Sub(start).Seconds(),
		TotalTargets:     cp.TotalTargets,
		ProcessedTargets: cp.ProcessedTargets,
		FailedTargets:    cp.FailedTargets,
		OutputPath:       cp.OutputPath,
		Targets:          make([]TargetReport, 0, len(cp.TargetIDs)),
	}
	for _, id := range cp.TargetIDs {
		tp := cp.Progress(id)
		if tp == nil {
			report.Targets = append(report.Targets, TargetReport{TargetID: id, Status: TargetPending})
			continue
		}
		report.Targets = append(report.Targets, TargetReport{
			TargetID:   id,
			Status:     tp.Status,
			Discovered: len(tp.DiscoveredURLs),
			Fetched:    len(tp.FetchedURLs),
			FailedURLs: tp.FailedURLs,
			Error:      tp.Error,
		})
	}
	return report
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
