package core

type Conf struct {
	Version              string `long:"version" description:"version of bitorder" env:"BITORDER_VERSION"`
	DevMode              bool   `long:"dev-mode" description:"run in dev mode" env:"BITORDER_DEV_MODE"`
	DisableStdoutLog     bool   `long:"disable-stdout-log" description:"do not log in standard output" env:"BITORDER_DISABLE_STDOUT_LOG"`
	EnableFileLog        bool   `long:"enable-file-log" description:"enable log in file" env:"BITORDER_ENABLE_FILE_LOG"`
	LogDir               string `long:"log-dir" description:"rotating log file dir" default:"./shares/logs" env:"BITORDER_LOG_DIR"`
	LogLevel             string `long:"log-level" description:"log level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" env:"BITORDER_LOG_LEVEL"`
	LogRotationMaxDays   int    `long:"log-rotation-max-days" description:"max days of log rotation" default:"7" env:"BITORDER_LOG_ROTATION_MAX_DAYS"`
	DeviceSettingPath    string `long:"device-setting-path" description:"device setting file path" default:"./device_setting.toml" env:"BITORDER_DEVICE_SETTING_PATH"`
	QueueMaxSize         int    `long:"queue-max-size" description:"queue max size" default:"100" env:"BITORDER_QUEUE_MAX_SIZE"`
	QueueRefillThreshold int    `long:"queue-refill-threshold" description:"queue refill threshold" default:"10" env:"BITORDER_QUEUE_REFILL_THRESHOLD"`
	SettingPath          string `long:"setting-path" description:"setting file path" default:"./setting/setting.toml" env:"BITORDER_SETTING_PATH"`
}
