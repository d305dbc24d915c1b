package response

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/chatctx/internal/ai"
	"github.com/xxxsen/chatctx/internal/pkg/errcode"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid", err: appErr.Invalid("title is required"), want: errcode.ErrInvalid},
		{name: "not found", err: appErr.ErrNotFound, want: errcode.ErrNotFound},
		{name: "dependency", err: appErr.Dependency("generate", context.DeadlineExceeded), want: errcode.ErrDependency},
		{name: "ai unavailable", err: appErr.Dependency("generate", ai.ErrUnavailable), want: errcode.ErrAIUnavailable},
		{name: "unknown", err: errors.New("boom"), want: errcode.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := CodeOf(tt.err)
			require.Equal(t, tt.want, code)
		})
	}
}
