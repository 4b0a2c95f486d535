package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger(Config{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger = NewLogger(Config{Level: "nonsense"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = NewLogger(Config{})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := Component(base, "monitor")
	logger.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"monitor"`)
}
