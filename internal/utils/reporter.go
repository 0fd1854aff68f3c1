package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 报告生成器
type Reporter struct {
	reportsDir string
}

// NewReporter 创建报告生成器, 报告写入 reportsDir
func NewReporter(reportsDir string) *Reporter {
	return &Reporter{reportsDir: reportsDir}
}

// GenerateReport 写入运行报告和失败URL列表, 返回报告路径
func (r *Reporter) GenerateReport(report *models.RunReport) (string, error) {
	if err := os.MkdirAll(r.reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	reportPath := filepath.Join(r.reportsDir, report.CheckpointID+"_report.json")
	if err := r.saveJSONReport(reportPath, report); err != nil {
		return "", err
	}

	// 失败URL单独列出,便于人工复查
	failed := make(map[string][]string)
	for _, target := range report.Targets {
		if len(target.FailedURLs) > 0 {
			failed[target.TargetID] = target.FailedURLs
		}
	}
	if len(failed) > 0 {
		failedPath := filepath.Join(r.reportsDir, report.CheckpointID+"_failed_urls.json")
		if err := r.saveJSONReport(failedPath, failed); err != nil {
			return "", err
		}
	}

	Infof("✅ 报告已生成: %s", reportPath)
	return reportPath, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := WriteFileAtomic(path, jsonData); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}
	Debugf("保存报告: %s", path)
	return nil
}

// ProgressScale 进度条的刻度, 进度以 (当前, 总数) 的小数形式报告
const ProgressScale = 1000

// NewProgressBar 创建进度条
func NewProgressBar(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(ProgressScale,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// ProgressUpdater 把 (当前, 总数) 转换为进度条位置
func ProgressUpdater(bar *progressbar.ProgressBar) func(current, total float64) {
	return func(current, total float64) {
		if total <= 0 {
			return
		}
		pos := int(current / total * ProgressScale)
		if pos > ProgressScale {
			pos = ProgressScale
		}
		_ = bar.Set(pos)
	}
}
