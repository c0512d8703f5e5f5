package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnv(t *testing.T) {
	type cfg struct {
		Name    string  `env:"APP_NAME"`
		Port    int     `env:"APP_PORT"`
		Debug   bool    `env:"APP_DEBUG"`
		Rate    float64 `env:"APP_RATE"`
		NoTag   string
		Skipped string `env:"APP_SKIPPED"`
	}

	out, err := MarshalEnv(&cfg{
		Name:  "mnemo",
		Port:  8080,
		Debug: true,
		Rate:  0.5,
		NoTag: "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "APP_NAME=mnemo\nAPP_PORT=8080\nAPP_DEBUG=true\nAPP_RATE=0.5\n", out)
}

func TestMarshalEnvEmptyStruct(t *testing.T) {
	type cfg struct {
		Name string `env:"APP_NAME"`
	}
	out, err := MarshalEnv(&cfg{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
