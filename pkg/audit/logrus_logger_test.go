package audit

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	logger := NewLogrusLogger(base)
	ctx := context.Background()

	t.Run("success events log at info", func(t *testing.T) {
		hook.Reset()
		event := NewEvent(ctx, EventTypeMembershipAdd, EventStatusSuccess).
			WithActor(3).
			WithProject(9).
			WithResource(ResourceTypeMembership, "12").
			WithMessage("member added").
			With("role", "viewer")

		require.NoError(t, logger.Log(ctx, event))

		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.InfoLevel, entry.Level)
		assert.Equal(t, "member added", entry.Message)
		assert.Equal(t, "membership.add", entry.Data["event_type"])
		assert.Equal(t, int64(3), entry.Data["user_id"])
		assert.Equal(t, int64(9), entry.Data["project_id"])
		assert.Equal(t, "viewer", entry.Data["meta_role"])
	})

	t.Run("denials log at warn", func(t *testing.T) {
		hook.Reset()
		event := NewEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied).WithMessage("denied")

		require.NoError(t, logger.Log(ctx, event))
		require.Len(t, hook.Entries, 1)
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	})
}
