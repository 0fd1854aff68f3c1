package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
)

// DefaultSQLiteFile 默认数据库文件名(位于检查点目录下)
const DefaultSQLiteFile = "checkpoints.db"

// SQLiteCheckpointStore 把检查点JSON保存在SQLite表中
// 每次更新在事务内整体替换该行
type SQLiteCheckpointStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteCheckpointStore 打开或创建数据库
func NewSQLiteCheckpointStore(dbPath string) (*SQLiteCheckpointStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败 [%s]: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 单写者
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	store := &SQLiteCheckpointStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库结构失败: %w", err)
	}
	return store, nil
}

func (s *SQLiteCheckpointStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteCheckpointStore) exists(id string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM checkpoints WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// Create 分配ID并插入初始状态
func (s *SQLiteCheckpointStore) Create(cp *models.JobCheckpoint) (string, error) {
	id, err := newCheckpointID(s.now(), s.exists)
	if err != nil {
		return "", fmt.Errorf("分配检查点ID失败: %w", err)
	}

	cp.CheckpointID = id
	cp.LastUpdated = s.now()
	cp.Recount()
	data, err := cp.ToJSON()
	if err != nil {
		return "", fmt.Errorf("序列化检查点失败: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO checkpoints (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(data), cp.CreatedAt.Format(time.RFC3339), cp.LastUpdated.Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("写入检查点失败: %w", err)
	}
	utils.Infof("已创建检查点: %s (sqlite)", id)
	return id, nil
}

// Update 在事务内读取、合并并替换
func (s *SQLiteCheckpointStore) Update(id string, cp *models.JobCheckpoint, recent []models.Post) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	var stored *models.JobCheckpoint
	var raw string
	err = tx.QueryRow(`SELECT data FROM checkpoints WHERE id = ?`, id).Scan(&raw)
	switch {
	case err == nil:
		stored, _, err = decodeCheckpoint(id, []byte(raw))
		if err != nil {
			utils.Warnf("检查点 %s 无法解析,将被覆盖: %v", id, err)
			stored = nil
		}
	case errors.Is(err, sql.ErrNoRows):
		utils.Warnf("检查点 %s 不存在,将重新创建", id)
	default:
		return fmt.Errorf("读取检查点失败: %w", err)
	}

	merged := mergeCheckpoint(id, stored, cp, recent, s.now())
	data, err := merged.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO checkpoints (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, string(data), merged.CreatedAt.Format(time.RFC3339), merged.LastUpdated.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("写入检查点失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	cp.CheckpointID = id
	cp.LastUpdated = merged.LastUpdated
	cp.RecentRecords = merged.RecentRecords
	utils.Debugf("检查点已更新: %s", merged.Summary())
	return nil
}

// Load 读取检查点
func (s *SQLiteCheckpointStore) Load(id string) (*models.JobCheckpoint, error) {
	var raw string
	err := s.db.QueryRow(`SELECT data FROM checkpoints WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewCrawlError(models.KindNotFound, id, err, "检查点不存在")
		}
		return nil, models.NewCrawlError(models.KindCheckpointCorrupt, id, err, "检查点不可读")
	}
	return loadCheckpoint(id, []byte(raw))
}

// List 按创建时间列出检查点ID
func (s *SQLiteCheckpointStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM checkpoints ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("查询检查点失败: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteCheckpointStore) Close() error {
	return s.db.Close()
}
