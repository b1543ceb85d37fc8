package command

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeText(t *testing.T, input string) []Command {
	t.Helper()
	raws, err := Parse([]byte(input))
	require.NoError(t, err)
	cmds, err := DecodeAll(raws)
	require.NoError(t, err)
	return cmds
}

func TestParse_ShapeInvariance(t *testing.T) {
	single := `{"action":"delete_tab","name":"Overview"}`
	want := decodeText(t, single)

	shapes := map[string]string{
		"single with whitespace": "\n  " + single + "  \n",
		"ndjson":                 single + "\n",
		"array":                  "[" + single + "]",
		"pretty object": `{
  "action": "delete_tab",
  "name": "Overview"
}`,
	}
	for name, input := range shapes {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(want, decodeText(t, input)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_ShapeInvarianceMultiple(t *testing.T) {
	a := `{"action":"add_tab","name":"Quality"}`
	b := `{"action":"add_panel","tab_name":"Quality","panel":{"type":"bar","x":"line"}}`
	c := `{"action":"create_file","relative_path":"notes/q.md","content":"# Q\n"}`

	want := decodeText(t, a+"\n"+b+"\n"+c)
	require.Len(t, want, 3)

	for name, input := range map[string]string{
		"array":         "[" + a + ",\n" + b + ",\n" + c + "]",
		"crlf":          a + "\r\n" + b + "\r\n" + c + "\r\n",
		"blank lines":   "\n" + a + "\n\n\n" + b + "\n  \n" + c,
		"same line run": a + " " + b + c,
		"pretty stream": "{\n \"action\": \"add_tab\",\n \"name\": \"Quality\"\n}\n" + b + "\n" + c,
	} {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(want, decodeText(t, input)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n"} {
		_, err := Parse([]byte(input))
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "no commands", pe.Msg)
		assert.ErrorIs(t, err, ErrParse)
	}
}

func TestParse_MalformedLineDoesNotStopLaterLines(t *testing.T) {
	line1 := `{"action":"list_tabs"}`
	line2 := `{"action": broken`
	line3 := `{"action":"add_tab","name":"X"}`
	input := line1 + "\n" + line2 + "\n" + line3 + "\n"

	raws, err := Parse([]byte(input))

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Lines, 1)
	assert.Equal(t, 2, pe.Lines[0].Line)
	assert.Equal(t, int64(len(line1)+1), pe.Lines[0].Offset)

	require.Len(t, raws, 2)
	assert.Equal(t, 1, raws[0].Line)
	assert.Equal(t, 3, raws[1].Line)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParse_EveryBadLineReported(t *testing.T) {
	input := "nope\n{\"action\":\"list_tabs\"}\n[1,2]\n42\n{oops}\n"

	raws, err := Parse([]byte(input))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))

	lines := make([]int, len(pe.Lines))
	for i, l := range pe.Lines {
		lines[i] = l.Line
	}
	assert.Equal(t, []int{1, 3, 4, 5}, lines)
	require.Len(t, raws, 1)
	assert.Equal(t, 2, raws[0].Line)
}

func TestParse_StreamNonObjectValue(t *testing.T) {
	raws, err := Parse([]byte("{\"action\":\"list_tabs\"}\n\"hello\"\n"))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Lines, 1)
	assert.Equal(t, 2, pe.Lines[0].Line)
	assert.Len(t, raws, 1)
}

func TestParse_Array(t *testing.T) {
	t.Run("non-object elements reported", func(t *testing.T) {
		raws, err := Parse([]byte("[\n{\"action\":\"list_tabs\"},\n7,\n{\"action\":\"rollback_layout\"}\n]"))
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		require.Len(t, pe.Lines, 1)
		assert.Equal(t, 3, pe.Lines[0].Line)
		require.Len(t, raws, 2)
		assert.Equal(t, 2, raws[0].Line)
		assert.Equal(t, 4, raws[1].Line)
	})

	t.Run("malformed array", func(t *testing.T) {
		raws, err := Parse([]byte(`[{"action":"list_tabs"},`))
		assert.ErrorIs(t, err, ErrParse)
		assert.Empty(t, raws)
	})

	t.Run("trailing content", func(t *testing.T) {
		_, err := Parse([]byte(`[{"action":"list_tabs"}] {"action":"list_tabs"}`))
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("empty array", func(t *testing.T) {
		_, err := Parse([]byte(`[]`))
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "no commands", pe.Msg)
	})
}

func TestLineHelpers(t *testing.T) {
	data := []byte("ab\ncd\nef")
	assert.Equal(t, 1, lineAt(data, 0))
	assert.Equal(t, 2, lineAt(data, 3))
	assert.Equal(t, 3, lineAt(data, 7))
	assert.Equal(t, int64(3), lineStart(data, 4))
	assert.Equal(t, int64(0), lineStart(data, 1))
}
