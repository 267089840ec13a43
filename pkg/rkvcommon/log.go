package rkvcommon

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// InitLogger builds a *logrus.Logger at level, formatted by LineFormatter
// with appName; rkv-server builds its logger with it.
func InitLogger(level, appName string) (*log.Logger, error) {
	logger := log.New()
	switch strings.ToLower(level) {
	case "trace":
		logger.SetLevel(log.TraceLevel)
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	case "fatal":
		logger.SetLevel(log.FatalLevel)
	case "panic":
		logger.SetLevel(log.PanicLevel)
	default:
		return nil, fmt.Errorf("unsupported log level %s", level)
	}
	logger.SetFormatter(&LineFormatter{AppName: appName})
	return logger, nil
}

// LineFormatter renders "2026/08/03 10:00:00 INFO [appname] message".
type LineFormatter struct {
	AppName string
}

func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	year, month, day := entry.Time.Date()
	hour, minute, second := entry.Time.Clock()
	str := fmt.Sprintf("%d/%02d/%02d %02d:%02d:%02d %s [%s] %s\n", year, month, day, hour, minute, second,
		strings.ToUpper(entry.Level.String()), f.AppName, entry.Message)
	return []byte(str), nil
}
