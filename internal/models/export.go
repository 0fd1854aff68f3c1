package models

import (
	"encoding/json"
	"time"
)

// SortOrder 导出文件中文章的排列方式
type SortOrder string

const (
	SortDateDesc   SortOrder = "date_desc"   // 按发布日期倒序
	SortCrawlOrder SortOrder = "crawl_order" // 按抓取顺序
)

// CrawlInfo 导出文件头部
type CrawlInfo struct {
	CrawlID          string    `json:"crawl_id,omitempty"`
	CrawlType        string    `json:"crawl_type"`
	CheckpointID     string    `json:"checkpoint_id,omitempty"`
	TotalTargets     int       `json:"total_targets"`
	ProcessedTargets int       `json:"processed_targets"`
	FailedTargets    int       `json:"failed_targets"`
	TotalRecords     int       `json:"total_records"`
	CrawlTimestamp   time.Time `json:"crawl_timestamp"`
	SortOrder        SortOrder `json:"sort_order"`
	Status           JobStatus `json:"status"`
	Interrupted      bool      `json:"interrupted"`
	Resumed          bool      `json:"resumed"`
}

// ExportArtifact 导出文件
type ExportArtifact struct {
	CrawlInfo CrawlInfo `json:"crawl_info"`
	Records   []Post    `json:"records"`
}

// HeaderFromCheckpoint 由检查点生成导出文件头部
func HeaderFromCheckpoint(cp *JobCheckpoint, interrupted, resumed bool) CrawlInfo {
	return CrawlInfo{
		CrawlID:          cp.RunID,
		CrawlType:        cp.CrawlType,
		CheckpointID:     cp.CheckpointID,
		TotalTargets:     cp.TotalTargets,
		ProcessedTargets: cp.ProcessedTargets,
		FailedTargets:    cp.FailedTargets,
		CrawlTimestamp:   time.Now(),
		Status:           cp.Status,
		Interrupted:      interrupted,
		Resumed:          resumed,
	}
}

// ToJSON 序列化为JSON
func (a *ExportArtifact) ToJSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// FromJSON 从JSON反序列化
func (a *ExportArtifact) FromJSON(data []byte) error {
	return json.Unmarshal(data, a)
}
