package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log = New(os.Stdout, logrus.InfoLevel)

// New builds a JSON logger writing to w.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	l.SetLevel(level)
	return l
}

// Init resets the package logger to stdout at the given level name.
// An unknown level falls back to info.
func Init(levels ...string) {
	level := logrus.InfoLevel
	if len(levels) > 0 && levels[0] != "" {
		if parsed, err := logrus.ParseLevel(levels[0]); err == nil {
			level = parsed
		}
	}
	log = New(os.Stdout, level)
}

// SetOutput swaps the package logger, mostly for tests.
func SetOutput(l *logrus.Logger) {
	log = l
}

func Info(msg string, kv ...interface{}) {
	withKV(kv).Info(msg)
}

func Infof(format string, v ...interface{}) {
	log.Infof(format, v...)
}

func Warn(msg string, kv ...interface{}) {
	withKV(kv).Warn(msg)
}

func Error(msg string, kv ...interface{}) {
	withKV(kv).Error(msg)
}

func Errorf(format string, v ...interface{}) {
	log.Errorf(format, v...)
}

func Debug(msg string, kv ...interface{}) {
	withKV(kv).Debug(msg)
}

func Debugf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}

func Fatal(msg string) {
	log.Fatal(msg)
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf(format, v...)
}

func WithError(err error) *logrus.Entry {
	return log.WithError(err)
}

func WithFields(fields map[string]interface{}) *logrus.Entry {
	return log.WithFields(logrus.Fields(fields))
}

// withKV turns alternating key/value arguments into logrus fields.
// A dangling key is logged under "!BADKEY" like slog does.
func withKV(kv []interface{}) *logrus.Entry {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			fields["!BADKEY"] = kv[i]
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if err, isErr := kv[i+1].(error); isErr {
			fields[key] = err.Error()
			continue
		}
		fields[key] = kv[i+1]
	}
	return log.WithFields(fields)
}
