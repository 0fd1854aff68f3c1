package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/blogcrawl/internal/crawlers"
	"github.com/RecoveryAshes/blogcrawl/internal/models"
	"github.com/RecoveryAshes/blogcrawl/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀, 例如 BLOGCRAWL_CRAWL_DELAY=2
const EnvPrefix = "BLOGCRAWL"

// 检查点存储后端
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config 应用程序配置
type Config struct {
	Crawl    models.CrawlConfig `mapstructure:"crawl" yaml:"crawl"`
	Output   OutputConfig       `mapstructure:"output" yaml:"output"`
	Logging  LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Resource ResourceConfig     `mapstructure:"resource" yaml:"resource"`
	Schedule ScheduleConfig     `mapstructure:"schedule" yaml:"schedule"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir               string `mapstructure:"dir" yaml:"dir"`
	CheckpointDir     string `mapstructure:"checkpoint_dir" yaml:"checkpoint_dir"`
	CheckpointBackend string `mapstructure:"checkpoint_backend" yaml:"checkpoint_backend"` // json 或 sqlite
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level" yaml:"level"`
	LogDir   string         `mapstructure:"log_dir" yaml:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int  `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ResourceConfig 打开浏览器页面前的资源检查
type ResourceConfig struct {
	MinAvailableMB   uint64  `mapstructure:"min_available_mb" yaml:"min_available_mb"`
	CPULoadThreshold float64 `mapstructure:"cpu_load_threshold" yaml:"cpu_load_threshold"`
	MaxWait          int     `mapstructure:"max_wait" yaml:"max_wait"` // 秒
}

// ScheduleConfig 定时任务配置
type ScheduleConfig struct {
	Cron    string   `mapstructure:"cron" yaml:"cron"`
	Targets []string `mapstructure:"targets" yaml:"targets"`
}

// LoadConfig 加载配置文件
// 先读取当前目录的.env,再按 默认值 < 配置文件 < 环境变量 合并
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Warnf("读取.env失败: %v", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".blogcrawl"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.Crawl.Normalize()
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	crawl := models.DefaultCrawlConfig()
	v.SetDefault("crawl.delay", crawl.Delay)
	v.SetDefault("crawl.timeout", crawl.Timeout)
	v.SetDefault("crawl.save_interval", crawl.SaveInterval)
	v.SetDefault("crawl.max_posts", crawl.MaxPosts)
	v.SetDefault("crawl.headless", crawl.Headless)
	v.SetDefault("crawl.sort_by_date", crawl.SortByDate)
	v.SetDefault("crawl.probe_mode", string(crawl.ProbeMode))
	v.SetDefault("crawl.rss_fallback", crawl.RSSFallback)
	v.SetDefault("crawl.navigate_rate", crawl.NavigateRate)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.checkpoint_dir", "checkpoints")
	v.SetDefault("output.checkpoint_backend", BackendJSON)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	resource := crawlers.DefaultResourceMonitorConfig()
	v.SetDefault("resource.min_available_mb", resource.MinAvailableMB)
	v.SetDefault("resource.cpu_load_threshold", resource.CPULoadThreshold)
	v.SetDefault("resource.max_wait", int(resource.MaxWait/time.Second))

	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.targets", []string{})
}

// Validate 验证无法钳制的配置项
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	switch c.Output.CheckpointBackend {
	case "", BackendJSON, BackendSQLite:
	default:
		return models.NewCrawlError(models.KindValidation, "", nil,
			"无效的检查点后端: %s (有效值: json, sqlite)", c.Output.CheckpointBackend)
	}
	return nil
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	rc := crawlers.DefaultResourceMonitorConfig()
	rc.MinAvailableMB = c.Resource.MinAvailableMB
	rc.CPULoadThreshold = c.Resource.CPULoadThreshold
	rc.MaxWait = time.Duration(c.Resource.MaxWait) * time.Second
	return rc
}

// ToYAML 输出生效的配置, 用于 config show
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("序列化配置失败: %w", err)
	}
	return string(data), nil
}
