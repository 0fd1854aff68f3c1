package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// DefaultCheckpointDir 默认检查点目录
const DefaultCheckpointDir = "checkpoints"

// FileCheckpointStore 每个检查点一个JSON文件: <dir>/<id>.json
type FileCheckpointStore struct {
	dir string
	now func() time.Time
}

// NewFileCheckpointStore 创建文件存储, dir为空时使用默认目录
func NewFileCheckpointStore(dir string) (*FileCheckpointStore, error) {
	if dir == "" {
		dir = DefaultCheckpointDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建检查点目录失败 [%s]: %w", dir, err)
	}
	return &FileCheckpointStore{dir: dir, now: time.Now}, nil
}

// Dir 检查点目录
func (s *FileCheckpointStore) Dir() string {
	return s.dir
}

func (s *FileCheckpointStore) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// resolve 接受检查点ID或文件路径
func (s *FileCheckpointStore) resolve(idOrPath string) (id, path string) {
	if strings.HasSuffix(idOrPath, ".json") || strings.ContainsRune(idOrPath, os.PathSeparator) {
		return strings.TrimSuffix(filepath.Base(idOrPath), ".json"), idOrPath
	}
	return idOrPath, s.pathFor(idOrPath)
}

// Create 分配ID并写入初始状态
func (s *FileCheckpointStore) Create(cp *models.JobCheckpoint) (string, error) {
	id, err := newCheckpointID(s.now(), func(id string) (bool, error) {
		_, err := os.Stat(s.pathFor(id))
		if err == nil {
			return true, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	})
	if err != nil {
		return "", fmt.Errorf("分配检查点ID失败: %w", err)
	}

	cp.CheckpointID = id
	cp.LastUpdated = s.now()
	cp.Recount()
	if err := s.write(s.pathFor(id), cp); err != nil {
		return "", err
	}
	utils.Infof("已创建检查点: %s", s.pathFor(id))
	return id, nil
}

// Update 读取现有文件,合并后整体重写
func (s *FileCheckpointStore) Update(id string, cp *models.JobCheckpoint, recent []models.Post) error {
	id, path := s.resolve(id)

	var stored *models.JobCheckpoint
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		stored, _, err = decodeCheckpoint(id, data)
		if err != nil {
			// 文件损坏时以内存状态为准重写
			utils.Warnf("检查点 %s 无法解析,将被覆盖: %v", id, err)
			stored = nil
		}
	case os.IsNotExist(err):
		utils.Warnf("检查点 %s 不存在,将重新创建", id)
	default:
		return fmt.Errorf("读取检查点失败 [%s]: %w", path, err)
	}

	merged := mergeCheckpoint(id, stored, cp, recent, s.now())
	if err := s.write(path, merged); err != nil {
		return err
	}
	cp.CheckpointID = id
	cp.LastUpdated = merged.LastUpdated
	cp.RecentRecords = merged.RecentRecords
	utils.Debugf("检查点已更新: %s", merged.Summary())
	return nil
}

// Load 读取检查点
func (s *FileCheckpointStore) Load(idOrPath string) (*models.JobCheckpoint, error) {
	id, path := s.resolve(idOrPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.NewCrawlError(models.KindNotFound, id, err, "检查点不存在: %s", path)
		}
		return nil, models.NewCrawlError(models.KindCheckpointCorrupt, id, err, "检查点不可读: %s", path)
	}
	return loadCheckpoint(id, data)
}

// List 按ID排序列出检查点(ID以时间开头,即按创建时间)
func (s *FileCheckpointStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close 文件存储无需释放资源
func (s *FileCheckpointStore) Close() error {
	return nil
}

func (s *FileCheckpointStore) write(path string, cp *models.JobCheckpoint) error {
	data, err := cp.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("写入检查点失败 [%s]: %w", path, err)
	}
	return nil
}
