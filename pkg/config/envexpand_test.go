package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("FB_HOST", "gpu-box.lan")
	t.Setenv("FB_TOKEN", "xoxb-secret")

	t.Run("expands set variables", func(t *testing.T) {
		out := ExpandEnv([]byte("base_url: http://{{.FB_HOST}}:8188"))
		assert.Equal(t, "base_url: http://gpu-box.lan:8188", string(out))
	})

	t.Run("expands multiple variables", func(t *testing.T) {
		out := ExpandEnv([]byte("a: {{.FB_HOST}}\nb: {{.FB_TOKEN}}"))
		assert.Equal(t, "a: gpu-box.lan\nb: xoxb-secret", string(out))
	})

	t.Run("missing variable expands to empty", func(t *testing.T) {
		out := ExpandEnv([]byte("channel: '{{.FB_DOES_NOT_EXIST}}'"))
		assert.Equal(t, "channel: ''", string(out))
	})

	t.Run("literal dollar passes through", func(t *testing.T) {
		out := ExpandEnv([]byte("password: pa$$word"))
		assert.Equal(t, "password: pa$$word", string(out))
	})

	t.Run("malformed template returns input unchanged", func(t *testing.T) {
		in := []byte("value: {{.unclosed")
		assert.Equal(t, in, ExpandEnv(in))
	})

	t.Run("no templates is a passthrough", func(t *testing.T) {
		in := []byte("server:\n  base_url: http://127.0.0.1:8188\n")
		assert.Equal(t, in, ExpandEnv(in))
	})
}
