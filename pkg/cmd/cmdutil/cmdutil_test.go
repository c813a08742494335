package cmdutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplefpvtimer/sftctl/log"
)

func TestHostPort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://192.168.4.1", "192.168.4.1:80"},
		{"http://192.168.4.1:8080/", "192.168.4.1:8080"},
		{"https://timer.local", "timer.local:443"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := hostPort(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, log.WarnLevel, parseLogLevel("warn", log.InfoLevel))
	assert.Equal(t, log.InfoLevel, parseLogLevel("loud", log.InfoLevel))
}
