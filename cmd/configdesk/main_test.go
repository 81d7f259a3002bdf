package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		want       zerolog.Level
	}{
		{"no settings", []string{"", ""}, zerolog.InfoLevel},
		{"primary wins", []string{"debug", "error"}, zerolog.DebugLevel},
		{"falls back", []string{"", "warn"}, zerolog.WarnLevel},
		{"case and space", []string{" TRACE "}, zerolog.TraceLevel},
		{"unknown skipped", []string{"loud", "error"}, zerolog.ErrorLevel},
		{"all unknown", []string{"loud"}, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.candidates...))
		})
	}
}
