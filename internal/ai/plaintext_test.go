package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlainText_StripsMarkdown(t *testing.T) {
	src := "# Plan a trip\n\nVisit **Paris** and _Rome_ in [spring](https://example.com).\n\n- book hotel\n- buy tickets\n"
	out := PlainText(src)
	require.Equal(t, "Plan a trip\nVisit Paris and Rome in spring.\nbook hotel\nbuy tickets", out)
}

func TestPlainText_KeepsCode(t *testing.T) {
	src := "run this:\n\n```go\nfmt.Println(\"hi\")\n```\n"
	out := PlainText(src)
	require.Contains(t, out, "run this:")
	require.Contains(t, out, `fmt.Println("hi")`)
	require.NotContains(t, out, "```")
}

func TestPlainText_Empty(t *testing.T) {
	require.Equal(t, "", PlainText("   \n"))
	require.Equal(t, "hello", PlainText("hello"))
}
