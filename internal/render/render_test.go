package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flexmailer/internal/headers"
)

func TestRenderKeepsOrder(t *testing.T) {
	h := headers.New(
		headers.ListUnsubscribe, "<mailto:u/unsub/7/abc123>",
		headers.MessageID, "<civimailm.42.7.abc123@acme.test>",
		headers.Precedence, "bulk",
		headers.JobID, "42",
		headers.From, `"Acme News" <news@acme.test>`,
		headers.ReplyTo, "reply@acme.test",
	)

	data, err := Render(h)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"), "expected blank line terminator")
	lower := strings.ToLower(out)
	prev := -1
	for _, k := range h.Keys() {
		idx := strings.Index(lower, strings.ToLower(k)+":")
		require.GreaterOrEqual(t, idx, 0, "missing %s", k)
		assert.Greater(t, idx, prev, "%s out of order", k)
		prev = idx
	}

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "bulk", parsed.Get("Precedence"))
	assert.Equal(t, "42", parsed.Get("job_id"))
	assert.Equal(t, `"Acme News" <news@acme.test>`, parsed.Get("From"))

	id, err := parsed.MessageID()
	require.NoError(t, err)
	assert.Equal(t, "civimailm.42.7.abc123@acme.test", id)
}

func TestRenderRejectsInjection(t *testing.T) {
	h := headers.New(headers.From, "a@example.com\r\nBcc: victim@example.com")
	_, err := Render(h)
	assert.Error(t, err)
}

func TestRenderFoldsLongValues(t *testing.T) {
	long := "<mailto:" + strings.Repeat("unsubscribe ", 12) + ">"
	data, err := Render(headers.New(headers.ListUnsubscribe, long))
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(line), 78)
	}
}
