package main

import (
	"io"
	"os"

	"energy-crm/pkg/config"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// setupLogger configures logrus for env. Output goes to logFilePath when set,
// stdout otherwise. The returned func closes the log file.
func setupLogger(env string, logFilePath string) (*logrus.Entry, func(), error) {
	log := logrus.New()
	closeFn := func() {}

	var out io.Writer = os.Stdout
	if logFilePath != "" {
		logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to open log file")
		}
		out = logFile
		closeFn = func() { logFile.Close() }
	}
	log.SetOutput(out)

	switch env {
	case config.EnvLocal:
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:   logFilePath == "",
			FullTimestamp: true,
		})
	case config.EnvDev:
		log.SetLevel(logrus.InfoLevel)
		log.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	default:
		log.SetLevel(logrus.WarnLevel)
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return logrus.NewEntry(log), closeFn, nil
}
