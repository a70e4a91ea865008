package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger() (*Logger, *[]string) {
	var lines []string
	return &Logger{logf: func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	}}, &lines
}

func decode(t *testing.T, line string) Event {
	t.Helper()
	require.True(t, strings.HasPrefix(line, "AUDIT: "))
	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "AUDIT: ")), &event))
	return event
}

func TestLogger_LogTransition(t *testing.T) {
	logger, lines := captureLogger()

	logger.LogTransition("fine", 7, 3, "PENDING", "PAID", "2.50")

	require.Len(t, *lines, 1)
	event := decode(t, (*lines)[0])
	assert.Equal(t, "TRANSITION", event.EventType)
	assert.Equal(t, "fine", event.Entity)
	assert.Equal(t, int64(7), event.EntityID)
	assert.Equal(t, int64(3), event.MemberID)
	assert.Equal(t, "PENDING", event.FromStatus)
	assert.Equal(t, "PAID", event.ToStatus)
	assert.Equal(t, "2.50", event.Amount)
	assert.Equal(t, "SUCCESS", event.Status)
}

func TestLogger_LogError(t *testing.T) {
	logger, lines := captureLogger()

	logger.LogError("SWEEP", "fine", 0, errors.New("connection reset"))

	require.Len(t, *lines, 1)
	event := decode(t, (*lines)[0])
	assert.Equal(t, "FAILED", event.Status)
	assert.Equal(t, map[string]any{"error": "connection reset"}, event.Details)
}

func TestLogger_Nil(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.LogOperation("SWEEP", "fine", 0, nil)
	})
}
