package application

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	zlog "github.com/lk2023060901/garden-serial/pkg/log"
	"github.com/lk2023060901/garden-serial/pkg/serial"
	"github.com/lk2023060901/garden-serial/pkg/util/merr"
	zviper "github.com/lk2023060901/garden-serial/pkg/util/viper"
)

const defaultConfigPath = "./config.yaml"

// Application 进程级容器，持有配置、日志与对象仓库。
type Application struct {
	configPath string
	cfg        *zviper.Config
	serialCfg  serial.Config
	repo       *serial.Repository
	loggers    map[string]*zlog.MLogger
}

// New configPath 为空时按以下优先级解析：
//  1. 默认 ./config.yaml（不存在时只使用缺省值）
//  2. 环境变量 GARDEN_CONFIG_FILE_PATH
//  3. 命令行 --config <path> 或 --config=<path>
func New(configPath string) *Application {
	return &Application{configPath: configPath}
}

// Run 加载 .env、配置文件与日志，然后创建 Repository。
func (a *Application) Run() error {
	// .env 可选，已存在的环境变量不会被覆盖
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	path, explicit, err := a.resolveConfigPath()
	if err != nil {
		return err
	}
	if !explicit {
		if _, statErr := os.Stat(path); statErr != nil {
			path = ""
		}
	}

	a.cfg = zviper.New()
	if path != "" {
		if err := a.cfg.LoadFile(path); err != nil {
			return merr.WrapErrIoFailed(path, err)
		}
	}
	if err := a.initLogging(); err != nil {
		return err
	}

	a.serialCfg, err = serial.LoadConfig(path)
	if err != nil {
		return err
	}
	a.repo, err = serial.NewRepository(serial.WithConfig(a.serialCfg), serial.WithLogger(a.Logger("serial")))
	if err != nil {
		return err
	}
	zlog.Info("application started", zap.String("config", path), zap.String("strategy", string(a.serialCfg.Strategy)))
	return nil
}

func (a *Application) Config() *zviper.Config {
	return a.cfg
}

func (a *Application) SerialConfig() serial.Config {
	return a.serialCfg
}

// Repository Run 成功之后可用。
func (a *Application) Repository() *serial.Repository {
	return a.repo
}

// Logger 未配置的名称回退到全局 logger。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

func (a *Application) resolveConfigPath() (string, bool, error) {
	if a.configPath != "" {
		return a.configPath, true, nil
	}
	path, explicit := defaultConfigPath, false
	if envPath := os.Getenv("GARDEN_CONFIG_FILE_PATH"); envPath != "" {
		path, explicit = envPath, true
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", false, merr.WrapErrParameterMissing("--config")
			}
			path, explicit = args[i+1], true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			path, explicit = val, true
		}
	}
	return path, explicit, nil
}

func (a *Application) initLogging() error {
	if err := initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 读取 GARDEN_LOG_* 环境变量：
//   - GARDEN_LOG_ENABLE: "1"/"true" 开启输出，默认关闭
//   - GARDEN_LOG_LEVEL: 默认 info
//   - GARDEN_LOG_STDOUT: 是否输出到 stdout
//   - GARDEN_LOG_FILE_DIR / GARDEN_LOG_FILE: 文件输出
//   - GARDEN_LOG_FORMAT: console 或 json
func initGlobalLoggerFromEnv() error {
	cfg := &zlog.Config{
		Level:  getenvDefault("GARDEN_LOG_LEVEL", "info"),
		Format: getenvDefault("GARDEN_LOG_FORMAT", "console"),
		Stdout: getenvBool("GARDEN_LOG_STDOUT", false),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("GARDEN_LOG_FILE_DIR", ""),
			Filename: getenvDefault("GARDEN_LOG_FILE", ""),
		},
	}
	if !getenvBool("GARDEN_LOG_ENABLE", false) {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger from env")
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 按 logging 节点创建具名 logger：
//
//	logging:
//	  serial:
//	    level: debug
//	    stdout: true
func (a *Application) initModuleLoggersFromConfig() error {
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		lc := lc
		logger, _, err := zlog.InitLogger(&lc)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.Named(name)}
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
