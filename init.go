package rawsheets

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	LaunchTime = time.Now()

	logMultiWriter io.Writer = os.Stdout

	Debug = os.Getenv("DEBUG") == "true"
)

func InitLogging() {
	if !Debug {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logFile, err := os.OpenFile("raw-sheets.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)

	if err == nil {
		logMultiWriter = io.MultiWriter(os.Stdout, logFile)
	} else {
		logrus.WithError(err).Errorf("Could not create raw sheets log file")
		logMultiWriter = os.Stdout
	}

	logrus.SetOutput(logMultiWriter)
}
