package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitResponse parses serialized response bytes back into status line, headers and body.
func splitResponse(t *testing.T, raw []byte) (string, map[string]string, []byte) {
	t.Helper()
	i := bytes.Index(raw, []byte("\r\n\r\n"))
	require.True(t, i >= 0, "no head terminator in %q", raw)

	lines := strings.Split(string(raw[:i]), "\r\n")
	headers := make(map[string]string)
	for _, line := range lines[1:] {
		k, v, ok := splitHeader(line)
		require.True(t, ok, "bad header line %q", line)
		headers[k] = v
	}
	return lines[0], headers, raw[i+4:]
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "OK", StatusText(200))
	assert.Equal(t, "Not Found", StatusText(404))
	assert.Equal(t, "Internal Server Error", StatusText(500))
	assert.Equal(t, "Service Unavailable", StatusText(503))
	assert.Equal(t, "Not Found", StatusText(302))
	assert.Equal(t, "Not Found", StatusText(0))
}

func TestNewTextResponseDefaults(t *testing.T) {
	resp := NewTextResponse(StatusOK, nil, "hello")
	assert.Equal(t, Version11, resp.Version)
	assert.Equal(t, "OK", resp.StatusText)
	assert.Equal(t, map[string]string{HeaderContentType: "text/html"}, resp.Headers)
	assert.False(t, resp.IsBinary())
	assert.Equal(t, "hello", resp.Text())
}

func TestNewBinaryResponseDefaults(t *testing.T) {
	resp := NewBinaryResponse(StatusNotFound, nil, []byte{1, 2})
	assert.Equal(t, "Not Found", resp.StatusText)
	assert.NotNil(t, resp.Headers)
	assert.Empty(t, resp.Headers)
	assert.True(t, resp.IsBinary())
	assert.Equal(t, []byte{1, 2}, resp.Body())
}

func TestResponseBytes(t *testing.T) {
	resp := NewTextResponse(StatusOK, map[string]string{
		"Content-Type":   "text/plain",
		"X-Custom":       "yes",
		"content-length": "999",
	}, "Hello, world!")

	status, headers, body := splitResponse(t, resp.Bytes())
	assert.Equal(t, "HTTP/1.1 200 OK", status)

	want := map[string]string{
		"Content-Type":   "text/plain",
		"X-Custom":       "yes",
		"Content-Length": "13",
	}
	if diff := cmp.Diff(want, headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Hello, world!", string(body))
}

func TestResponseBytesEmptyBody(t *testing.T) {
	resp := NewTextResponse(StatusNotFound, nil, "")
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\nContent-Type: text/html\r\nContent-Length: 0\r\n\r\n", resp.String())
}

func TestResponseBinaryBody(t *testing.T) {
	data := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	resp := NewBinaryResponse(StatusOK, map[string]string{"Content-Type": "image/png"}, data)

	status, headers, body := splitResponse(t, resp.Bytes())
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "6", headers[HeaderContentLength])
	assert.Equal(t, data, body)
}

func TestResponseMultiByteLength(t *testing.T) {
	resp := NewTextResponse(StatusOK, nil, "héllo")
	_, headers, _ := splitResponse(t, resp.Bytes())
	assert.Equal(t, "6", headers[HeaderContentLength])
}

func TestResponseSetBody(t *testing.T) {
	resp := NewTextResponse(StatusOK, nil, "text")
	resp.SetBinaryBody([]byte("bin!!"))
	assert.True(t, resp.IsBinary())
	assert.Equal(t, "", resp.Text())
	_, headers, body := splitResponse(t, resp.Bytes())
	assert.Equal(t, "5", headers[HeaderContentLength])
	assert.Equal(t, "bin!!", string(body))

	resp.SetTextBody("back")
	assert.False(t, resp.IsBinary())
	assert.Equal(t, []byte("back"), resp.Body())
}

func TestResponseSetHeader(t *testing.T) {
	resp := NewTextResponse(StatusOK, nil, "")
	resp.SetHeader("content-type", "text/plain")
	assert.Len(t, resp.Headers, 1)
	v, ok := resp.Header("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)

	empty := &Response{}
	empty.SetHeader("X-A", "1")
	assert.Equal(t, "1", empty.Headers["X-A"])

	_, ok = empty.Header("X-B")
	assert.False(t, ok)
}

func TestResponseEmptyStatusText(t *testing.T) {
	resp := &Response{Version: Version10, StatusCode: StatusInternalServerError}
	assert.True(t, strings.HasPrefix(resp.String(), "HTTP/1.0 500 Internal Server Error\r\n"))
}

func TestResponseWriteTo(t *testing.T) {
	resp := NewTextResponse(StatusOK, nil, strings.Repeat("a", 10000))
	buf := &bytes.Buffer{}
	n, err := resp.WriteTo(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, resp.Bytes(), buf.Bytes())
}

type failingWriter struct {
	after int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("broken pipe")
	}
	if len(p) > f.after {
		n := f.after
		f.after = 0
		return n, errors.New("broken pipe")
	}
	f.after -= len(p)
	return len(p), nil
}

func TestResponseWriteToError(t *testing.T) {
	resp := NewTextResponse(StatusOK, nil, strings.Repeat("a", 10000))
	_, err := resp.WriteTo(&failingWriter{after: 10})
	assert.Error(t, err)
}

func TestResponseDecodableByClient(t *testing.T) {
	resp := NewBinaryResponse(StatusOK, map[string]string{"Content-Type": "application/octet-stream"}, []byte("0123456789"))
	br := bufio.NewReader(bytes.NewReader(resp.Bytes()))

	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", status)
}
