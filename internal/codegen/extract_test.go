package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "python fence",
			reply: "Here you go:\n```python\ncube = partstudio.add_sketch(plane)\n```\nDone.",
			want:  "cube = partstudio.add_sketch(plane)",
		},
		{
			name:  "py fence",
			reply: "```py\nx = 1\n```",
			want:  "x = 1",
		},
		{
			name:  "other language tag",
			reply: "```python3\nx = 1\n```",
			want:  "x = 1",
		},
		{
			name:  "missing closing fence",
			reply: "Let me write it.\n```python\nx = 1\ny = 2\n",
			want:  "x = 1\ny = 2",
		},
		{
			name:  "two blocks joined",
			reply: "```\na = 1\n```\nand then\n```python\nb = 2\n```",
			want:  "a = 1\n\nb = 2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(tc.reply)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExtractMissingFenceRoundTrip(t *testing.T) {
	replies := []string{
		"```python\nprint('hi')\n",
		"prose first\n```\nfor i in range(3):\n    print(i)",
		"```python\nsketch = partstudio.add_sketch(plane=partstudio.features.top_plane)\nsketch.add_circle((0, 0), radius=1)",
	}
	for _, reply := range replies {
		open, err := Extract(reply)
		require.NoError(t, err)

		closed, err := Extract(reply + "\n```")
		require.NoError(t, err)
		require.Equal(t, open, closed)

		idx := strings.Index(reply, "```")
		rest := reply[idx+3:]
		rest = rest[strings.IndexByte(rest, '\n')+1:]
		require.Equal(t, strings.TrimSpace(rest), open)
	}
}

func TestExtractWithoutCode(t *testing.T) {
	_, err := Extract("I think we should extrude the sketch.")
	require.ErrorIs(t, err, ErrNoCode)

	_, err = Extract("```\n\n```")
	require.ErrorIs(t, err, ErrNoCode)
}

func TestPreambleAndScript(t *testing.T) {
	script := Script("doc-123", "\nprint('ok')\n\n")
	require.Equal(t,
		"import onpy\npartstudio = onpy.get_document(\"doc-123\").get_partstudio()\npartstudio.wipe()\n\nprint('ok')\n",
		script,
	)

	require.Contains(t, Preamble(`a"b`), `onpy.get_document("a\"b")`)
}

func TestCADEnv(t *testing.T) {
	require.Equal(t, []string{"ONSHAPE_DEV_ACCESS=a", "ONSHAPE_DEV_SECRET=s"}, CADEnv("a", "s"))
	require.Empty(t, CADEnv("", ""))
}
