package viper

import (
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
func New() *Config {
	return &Config{
		v: spfviper.New(),
	}
}

// NewWithEnv 创建一个会读取环境变量覆盖的 Config。
// 键中的 "." 和 "-" 映射为 "_"，例如 prefix=GARDEN 时 serial.strategy 对应 GARDEN_SERIAL_STRATEGY。
func NewWithEnv(prefix string) *Config {
	v := spfviper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Config{v: v}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中，类型通过扩展名推断。
func (c *Config) LoadFile(path string) error {
	if c.v == nil {
		c.v = spfviper.New()
	}

	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	return c.v.ReadInConfig()
}

// SetDefault 设置 key 的缺省值；AutomaticEnv 只对已知 key 生效，所以需要先声明缺省值。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

func (c *Config) IsSet(key string) bool {
	return c.v != nil && c.v.IsSet(key)
}

func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst，dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst interface{}) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
func (c *Config) UnmarshalKey(key string, dst interface{}) error {
	if c.v == nil {
		return nil
	}
	return c.v.UnmarshalKey(key, dst)
}
