package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json_info", level: "info", format: "json"},
		{name: "default_format", level: "warn", format: ""},
		{name: "console_debug", level: "debug", format: "console"},
		{name: "padded_values", level: " error ", format: " JSON "},
		{name: "bad_level", level: "loud", format: "json", wantErr: true},
		{name: "bad_format", level: "info", format: "xml", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := New(tc.level, tc.format)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, log.GetSink())
		})
	}
}

func TestVerbosityFollowsLevel(t *testing.T) {
	log, err := New("info", "json")
	assert.NoError(t, err)
	assert.True(t, log.Enabled())
	assert.False(t, log.V(VERBOSE).Enabled())

	log, err = New("debug", "json")
	assert.NoError(t, err)
	assert.True(t, log.V(VERBOSE).Enabled())
}
