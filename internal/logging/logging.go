package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the process logger.
type Options struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	File       string // empty means stderr
	MaxAgeDays int    // rotation retention when File is set
}

// New builds a logrus logger from Options. Invalid level or format is an
// error rather than a silent default so a config typo is caught at startup.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()

	level := strings.ToLower(strings.TrimSpace(opts.Level))
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", opts.Level)
	}
	log.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	if opts.File != "" {
		maxAge := opts.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 7
		}
		log.SetOutput(&lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  100,
			MaxAge:   maxAge,
			Compress: true,
		})
	} else {
		log.SetOutput(os.Stderr)
	}
	return log, nil
}
