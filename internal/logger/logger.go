package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	fileName          = "sppmonitoring.log"
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 20
)

type Fields = log.Fields

// Options задаёт уровень логирования и необязательную ротацию файлов.
type Options struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	JSON       bool
}

// Setup настраивает стандартный логгер logrus. Если Dir задан, логи пишутся
// одновременно в stdout и в ротируемый файл. Возвращаемый io.Closer закрывает файл.
func Setup(opts Options) (io.Closer, error) {
	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if opts.JSON {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	if opts.Dir == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, fileName),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotating))

	return rotating, nil
}

// WithComponent возвращает Entry с полем component.
func WithComponent(component string) *log.Entry {
	return log.WithField("component", component)
}

func WithComponentAndFields(component string, fields Fields) *log.Entry {
	newFields := make(log.Fields, len(fields)+1)
	for k, v := range fields {
		newFields[k] = v
	}
	newFields["component"] = component
	return log.WithFields(newFields)
}

// MaskSensitiveData скрывает ключи API в логах, оставляя края строки.
func MaskSensitiveData(data string) string {
	if data == "" {
		return ""
	}
	if len(data) <= 3 {
		return "***"
	}
	if len(data) <= 12 {
		return data[:4] + "***"
	}
	return data[:4] + "***" + data[len(data)-4:]
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
