package buildererr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	cause := errors.New("exit status 1")

	t.Run("build", func(t *testing.T) {
		err := Build("nova-api", 2, cause)
		assert.ErrorIs(t, err, ErrBuild)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, ErrPush)
		assert.Equal(t, "nova-api: attempt 2 failed: exit status 1", err.Error())
		assert.Equal(t, CodeBuild, CodeOf(err))
	})

	t.Run("timeout is a build error", func(t *testing.T) {
		err := Timeout("nova-api", 1, 2*time.Second)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, ErrBuild)
		assert.Contains(t, err.Error(), "timed out after 2s")
		assert.Equal(t, CodeTimeout, CodeOf(err))
	})

	t.Run("push", func(t *testing.T) {
		wrapped := fmt.Errorf("pusher: %w", Push("keystone", cause))
		assert.ErrorIs(t, wrapped, ErrPush)
		assert.Equal(t, CodePush, CodeOf(wrapped))
	})

	t.Run("definition", func(t *testing.T) {
		err := Definition("image %q references unknown parent %q", "a", "b")
		assert.ErrorIs(t, err, ErrDefinition)
		assert.Equal(t, `image "a" references unknown parent "b"`, err.Error())

		wrapped := WrapDefinition("nova-api", cause)
		assert.ErrorIs(t, wrapped, ErrDefinition)
		assert.Equal(t, "nova-api: invalid definition: exit status 1", wrapped.Error())
	})

	t.Run("config", func(t *testing.T) {
		assert.ErrorIs(t, Config("threads must be positive"), ErrConfig)
		assert.Equal(t, "", CodeOf(cause))
	})
}
