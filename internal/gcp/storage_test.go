package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("USF_TEST_SET", "value")
	assert.Equal(t, "value", GetEnv("USF_TEST_SET", "fallback"))
	assert.Equal(t, "fallback", GetEnv("USF_TEST_UNSET", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("USF_TEST_INT", "8000")
	t.Setenv("USF_TEST_BAD_INT", "eight")
	assert.Equal(t, 8000, GetEnvInt("USF_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("USF_TEST_BAD_INT", 1))
	assert.Equal(t, 5, GetEnvInt("USF_TEST_MISSING_INT", 5))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("USF_TEST_BOOL", "true")
	t.Setenv("USF_TEST_BAD_BOOL", "maybe")
	assert.True(t, GetEnvBool("USF_TEST_BOOL", false))
	assert.False(t, GetEnvBool("USF_TEST_BAD_BOOL", false))
	assert.True(t, GetEnvBool("USF_TEST_MISSING_BOOL", true))
}
