package util

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandler(t *testing.T) {
	err := errors.Wrap(errors.New("connection reset"), "failed to fetch page")

	SetDebugMode(false)
	msg := ErrorHandler(err)
	assert.Contains(t, msg, "failed to fetch page: connection reset")
	assert.Contains(t, msg, "-debug")

	SetDebugMode(true)
	defer SetDebugMode(false)
	msg = ErrorHandler(err)
	assert.Contains(t, msg, "DEBUG ERROR")
	assert.Contains(t, msg, "util_test.go", "debug output carries the stack trace")
}

func TestInitLoggerTo(t *testing.T) {
	var buf bytes.Buffer

	SetDebugMode(false)
	InitLoggerTo(&buf)
	defer InitLogger()

	Debug("hidden")
	Info("episode saved", "path", "One_Piece/1_hd.mp4")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "episode saved")
	assert.Contains(t, out, "One_Piece/1_hd.mp4")
}

func TestHelpTextListsFlags(t *testing.T) {
	text := HelpText()
	for _, flag := range []string{"-quality", "-conflict", "-native", "-pacing", "-limit-rate"} {
		assert.Contains(t, text, flag)
	}
}
