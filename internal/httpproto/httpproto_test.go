package httpproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReturnsNeedMoreOnPartialHeaders(t *testing.T) {
	_, status := Parse([]byte("GET / HTTP/1.1\r\nHost: x"), 1024)
	assert.Equal(t, StatusNeedMore, status)
}

func TestParseCompletesSimpleGet(t *testing.T) {
	raw := "GET /tools/click?x=1 HTTP/1.1\r\nHost: localhost\r\nContent-Length: 0\r\n\r\n"
	req, status := Parse([]byte(raw), 1024)
	require.Equal(t, StatusComplete, status)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/tools/click", req.Path)
	assert.Equal(t, "x=1", req.Query)
	assert.Equal(t, "localhost", req.Header("Host"))
	assert.Equal(t, len(raw), req.ConsumedBytes)
}

func TestParseWaitsForFullBody(t *testing.T) {
	raw := "POST /tools/click HTTP/1.1\r\nContent-Length: 10\r\n\r\nshort"
	_, status := Parse([]byte(raw), 1024)
	assert.Equal(t, StatusNeedMore, status)
}

func TestParseReturnsCompleteOnceBodyArrives(t *testing.T) {
	raw := "POST /tools/click HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	req, status := Parse([]byte(raw), 1024)
	require.Equal(t, StatusComplete, status)
	assert.Equal(t, []byte("hello"), req.Body)
}

func TestParseRejectsMalformedRequestLine(t *testing.T) {
	_, status := Parse([]byte("GARBAGE\r\n\r\n"), 1024)
	assert.Equal(t, StatusMalformed, status)
}

func TestParseRejectsOversizedBody(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 999999\r\n\r\n"
	_, status := Parse([]byte(raw), 10)
	assert.Equal(t, StatusTooLarge, status)
}

func TestHeaderContainsTokenIsCaseInsensitive(t *testing.T) {
	assert.True(t, HeaderContainsToken("Keep-Alive, Upgrade", "upgrade"))
	assert.False(t, HeaderContainsToken("Keep-Alive", "upgrade"))
}

func TestResponseSerializeIncludesContentLength(t *testing.T) {
	resp := NewResponse(200, []byte(`{"ok":true}`))
	out := string(resp.Serialize())
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "Content-Length: 11")
	assert.Contains(t, out, `{"ok":true}`)
}
