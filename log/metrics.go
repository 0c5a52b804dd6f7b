package log

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oqtopus-team/bitorder/common"
	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

const MetricsLogTaskName = "metrics_log"

const (
	queueLengthKeyInMetrics  = "queue_length"
	deviceStatusKeyInMetrics = "device_status"
	deviceNameKeyInMetrics   = "device_name"
)

// MetricsLogTaskImpl appends the engine metrics to a daily JSON file.
type MetricsLogTaskImpl struct {
	FileDir string `toml:"file_dir"`

	dl     *dailyLogger
	logger *slog.Logger
	sc     *core.SystemComponents

	core.DefaultTaskImpl
}

func (m *MetricsLogTaskImpl) Setup() error {
	if err := common.IsDirWritable(m.FileDir); err != nil {
		zap.L().Error("failed to set up metrics log task", zap.Error(err))
		return fmt.Errorf("failed to write to %s: %w", m.FileDir, err)
	}
	m.dl = newDailyLogger(m.FileDir)
	m.logger = slog.New(slog.NewJSONHandler(m.dl, nil))
	m.sc = core.GetSystemComponents()
	if m.sc == nil {
		return fmt.Errorf("%s needs the system components", MetricsLogTaskName)
	}
	return nil
}

func (m *MetricsLogTaskImpl) GetEmptyParams() interface{} {
	return m
}

func (m *MetricsLogTaskImpl) SetParams(p interface{}) error {
	if p == nil {
		zap.L().Debug("no params for metrics log task")
		return nil
	}
	mp, ok := p.(*MetricsLogTaskImpl)
	if !ok {
		err := fmt.Errorf("failed to set params for metrics log task/params: %v", p)
		zap.L().Error(err.Error())
		return err
	}
	if mp.FileDir == "" {
		return fmt.Errorf("%s needs file_dir", MetricsLogTaskName)
	}
	m.FileDir = mp.FileDir
	return nil
}

func (m *MetricsLogTaskImpl) Task() {
	attrs := []any{slog.Int(queueLengthKeyInMetrics, m.sc.GetCurrentQueueSize())}
	if di := m.sc.GetDeviceInfo(); di != nil {
		attrs = append(attrs,
			slog.String(deviceNameKeyInMetrics, di.DeviceName),
			slog.String(deviceStatusKeyInMetrics, di.Status.String()))
	}
	m.logger.Info("Metrics", attrs...)
}

func (m *MetricsLogTaskImpl) Cleanup() {
	if m.dl != nil {
		m.dl.Close()
	}
}

type dailyLogger struct {
	mu              sync.Mutex
	fileDir         string
	currentFileName string
	file            *os.File
	now             func() time.Time
}

func newDailyLogger(fileDir string) *dailyLogger {
	return &dailyLogger{
		fileDir: fileDir,
		now:     time.Now,
	}
}

func (dl *dailyLogger) Write(p []byte) (n int, err error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	fileName := fmt.Sprintf("metrics-%s.log", dl.now().Format("2006-01-02"))
	if dl.file == nil || dl.currentFileName != fileName {
		if dl.file != nil {
			dl.file.Close()
		}
		var err error
		dl.file, err = os.OpenFile(filepath.Join(dl.fileDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, err
		}
		dl.currentFileName = fileName
	}

	return dl.file.Write(p)
}

func (dl *dailyLogger) Close() error {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file != nil {
		err := dl.file.Close()
		dl.file = nil
		return err
	}
	return nil
}
