package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDependencyKeepsCause(t *testing.T) {
	err := Dependency("index query", context.DeadlineExceeded)
	require.True(t, IsDependency(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Contains(t, err.Error(), "index query")
	require.Nil(t, Dependency("noop", nil))
}

func TestKinds(t *testing.T) {
	require.True(t, IsInvalid(Invalid("content is required")))
	require.True(t, IsConsistency(Consistency("c1", "m1")))
	require.False(t, IsNotFound(Invalid("x")))
}
