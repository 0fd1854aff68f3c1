package models

import (
	"strings"

	"github.com/google/uuid"
)

// ValidateTargetID 去除空白并检查目标ID非空
func ValidateTargetID(targetID string) (string, error) {
	trimmed := strings.TrimSpace(targetID)
	if trimmed == "" {
		return "", NewCrawlError(KindValidation, "", nil, "目标ID不能为空")
	}
	return trimmed, nil
}

// ValidateTargets 清理目标列表: 去空白、去重、保持顺序
func ValidateTargets(targetIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(targetIDs))
	result := make([]string, 0, len(targetIDs))
	for _, id := range targetIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil, NewCrawlError(KindValidation, "", nil, "目标列表为空")
	}
	return result, nil
}

// GenerateID 生成唯一ID
func GenerateID() string {
	return uuid.New().String()
}
