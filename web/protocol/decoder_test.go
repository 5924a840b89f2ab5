package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethodAndVersion(t *testing.T) {
	assert.Equal(t, MethodGet, ParseMethod("GET"))
	assert.Equal(t, MethodPost, ParseMethod("POST"))
	assert.Equal(t, MethodUninitialized, ParseMethod("OPTIONS"))
	assert.Equal(t, MethodUninitialized, ParseMethod("get"))

	assert.Equal(t, Version10, ParseVersion("HTTP/1.0"))
	assert.Equal(t, Version11, ParseVersion("HTTP/1.1"))
	assert.Equal(t, VersionUninitialized, ParseVersion("HTTP/2.0"))
	assert.Equal(t, "UNINITIALIZED", VersionUninitialized.String())
}

func TestParseBufferedRequest(t *testing.T) {
	req := Parse([]byte("GET / HTTP/1.1\r\nHost: localhost:8080\r\nContent-Length: 10\r\n\r\nHello, world!\nEnd Line."))

	assert.Equal(t, MethodGet, req.Method)
	assert.Equal(t, PathResource("/"), req.Resource)
	assert.Equal(t, Version11, req.Version)
	assert.Equal(t, "localhost:8080", req.Headers["Host"])
	assert.Len(t, req.Headers, 2)
	assert.Equal(t, "Hello, world!\nEnd Line.", req.BodyString())
}

func TestDecodeRequestLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		method   Method
		resource Resource
		version  Version
	}{
		{"get", "GET /index.html HTTP/1.1", MethodGet, PathResource("/index.html"), Version11},
		{"post 1.0", "POST /form HTTP/1.0", MethodPost, PathResource("/form"), Version10},
		{"unknown method", "DELETE /x HTTP/1.1", MethodUninitialized, PathResource("/x"), Version11},
		{"unknown version", "GET / HTTP/3", MethodGet, PathResource("/"), VersionUninitialized},
		{"extra spaces", "GET   /a\tHTTP/1.1", MethodGet, PathResource("/a"), Version11},
		{"two tokens", "GET /", MethodUninitialized, Resource{}, VersionUninitialized},
		{"four tokens", "GET / HTTP/1.1 x", MethodUninitialized, Resource{}, VersionUninitialized},
		{"garbage", "hello", MethodUninitialized, Resource{}, VersionUninitialized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewDecoder(strings.NewReader(tt.line + "\r\nHost: a\r\n\r\n")).Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.resource, req.Resource)
			assert.Equal(t, tt.version, req.Version)
			assert.Equal(t, "a", req.Headers["Host"])
		})
	}
}

func TestDecodeHeaders(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n" +
		"Host:  example.com \r\n" +
		"X-Time: 12:30:01\r\n" +
		"Accept: a\r\n" +
		"Accept: b\r\n" +
		"\r\n"
	req, err := NewDecoder(strings.NewReader(raw)).Decode()
	require.NoError(t, err)

	want := map[string]string{
		"Host":   "example.com",
		"X-Time": "12:30:01",
		"Accept": "b",
	}
	if diff := cmp.Diff(want, req.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, req.Body)
}

func TestDecodeBareLF(t *testing.T) {
	req, err := NewDecoder(strings.NewReader("GET /lf HTTP/1.0\nHost: x\n\n")).Decode()
	require.NoError(t, err)
	assert.Equal(t, "/lf", req.Path())
	assert.Equal(t, "x", req.Headers["Host"])
}

func TestDecodeContentLength(t *testing.T) {
	raw := "POST /test HTTP/1.1\r\nContent-Length: 11\r\n\r\nHello Worldtrailing garbage"
	r := strings.NewReader(raw)
	req, err := NewDecoder(r).Decode()
	require.NoError(t, err)

	assert.Equal(t, MethodPost, req.Method)
	assert.Equal(t, "Hello World", req.BodyString())
}

func TestDecodeContentLengthCaseInsensitive(t *testing.T) {
	req, err := NewDecoder(strings.NewReader("POST / HTTP/1.1\r\ncontent-length: 3\r\n\r\nabc")).Decode()
	require.NoError(t, err)
	assert.Equal(t, "abc", req.BodyString())
}

func TestDecodeContentLengthInvalid(t *testing.T) {
	for _, v := range []string{"abc", "-5", "0"} {
		req, err := NewDecoder(strings.NewReader("POST / HTTP/1.1\r\nContent-Length: " + v + "\r\n\r\nbody")).Decode()
		require.NoError(t, err)
		assert.Empty(t, req.Body, v)
	}
}

func TestDecodeBinaryBody(t *testing.T) {
	body := []byte{0x00, 0xff, '\r', '\n', 0x80, 0x01}
	raw := append([]byte("POST /bin HTTP/1.1\r\nContent-Length: 6\r\n\r\n"), body...)
	req, err := NewDecoder(bytes.NewReader(raw)).Decode()
	require.NoError(t, err)
	assert.Equal(t, body, req.Body)
}

func TestDecodeTruncatedBody(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("POST / HTTP/1.1\r\nContent-Length: 20\r\n\r\nshort")).Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, IsMalformed(err))
}

func TestDecodeChunked(t *testing.T) {
	raw := "POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	req, err := NewDecoder(strings.NewReader(raw)).Decode()
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia", req.BodyString())

	assert.Equal(t, "Wikipedia", Parse([]byte(raw)).BodyString())
}

func TestDecodeChunkedOneByteReads(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: Chunked\r\n\r\n4;name=v\r\nWiki\r\n5\r\npedia\r\nE\r\n in\r\n\r\nchunks.\r\n0\r\nX-Trailer: 1\r\n\r\n"
	req, err := NewDecoder(iotest.OneByteReader(strings.NewReader(raw))).Decode()
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia in\r\n\r\nchunks.", req.BodyString())
}

func TestDecodeChunkedErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		malformed bool
	}{
		{"bad hex", "zz\r\nabc\r\n0\r\n\r\n", true},
		{"empty size", "\r\n", true},
		{"data longer than size", "3\r\nabcdef\r\n0\r\n\r\n", true},
		{"truncated data", "a\r\nabc", false},
		{"missing last chunk", "3\r\nabc\r\n", false},
		{"missing final terminator", "3\r\nabc\r\n0\r\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" + tt.body
			_, err := NewDecoder(strings.NewReader(raw)).Decode()
			require.Error(t, err)
			assert.Equal(t, tt.malformed, IsMalformed(err), err.Error())
			if !tt.malformed {
				assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), err.Error())
			}
		})
	}
}

func TestDecodeContentLengthWinsOverChunked(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 3\r\nTransfer-Encoding: chunked\r\n\r\nabc"
	req, err := NewDecoder(strings.NewReader(raw)).Decode()
	require.NoError(t, err)
	assert.Equal(t, "abc", req.BodyString())
}

func TestDecodeLeakedHeaderLines(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: a\r\nfirst stray\r\nsecond stray\r\nContent-Length: 4\r\n\r\nbody"
	req, err := NewDecoder(strings.NewReader(raw)).Decode()
	require.NoError(t, err)
	assert.Equal(t, "first stray\nsecond stray\nbody", req.BodyString())
	assert.Equal(t, "a", req.Headers["Host"])
}

func TestDecodeNoBlankLine(t *testing.T) {
	req, err := NewDecoder(strings.NewReader("GET /a HTTP/1.1\r\nHost: a\r\nstray")).Decode()
	require.NoError(t, err)
	assert.Equal(t, "/a", req.Path())
	assert.Equal(t, "stray", req.BodyString())
}

func TestDecodeEmptyStream(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("")).Decode()
	assert.True(t, errors.Is(err, ErrEmptyRequest))
	assert.False(t, IsMalformed(err))
}

func TestDecodeEmptyFirstLine(t *testing.T) {
	req, err := NewDecoder(strings.NewReader("\r\nGET / HTTP/1.1\r\n\r\n")).Decode()
	require.NoError(t, err)
	assert.Equal(t, MethodUninitialized, req.Method)
	assert.False(t, req.Resource.IsPath())
	assert.Equal(t, "", req.Path())
}

func TestDecodeHeaderLimit(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Big: " + strings.Repeat("a", 200) + "\r\n\r\n"
	_, err := NewDecoder(strings.NewReader(raw), WithMaxHeaderBytes(64)).Decode()
	assert.True(t, errors.Is(err, ErrHeaderTooLarge))
	assert.True(t, IsMalformed(err))

	_, err = NewDecoder(strings.NewReader(raw), WithMaxHeaderBytes(1024)).Decode()
	assert.NoError(t, err)
}

func TestDecodeBodyLimit(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("POST / HTTP/1.1\r\nContent-Length: 100\r\n\r\n"), WithMaxBodySize(10)).Decode()
	assert.True(t, errors.Is(err, ErrBodyTooLarge))

	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n8\r\n12345678\r\n8\r\n12345678\r\n0\r\n\r\n"
	_, err = NewDecoder(strings.NewReader(raw), WithMaxBodySize(10)).Decode()
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
	assert.True(t, IsMalformed(err))
}

// zeroReader yields an endless run of '0' and counts what was read.
type zeroReader struct {
	n int
}

func (z *zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = '0'
	}
	z.n += len(p)
	return len(p), nil
}

func TestDecodeChunkedSizeLineLimit(t *testing.T) {
	head := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"
	endless := &zeroReader{}
	_, err := NewDecoder(io.MultiReader(strings.NewReader(head), endless),
		WithMaxHeaderBytes(1024), WithMaxBodySize(1024)).Decode()
	assert.True(t, errors.Is(err, ErrInvalidChunk), err)
	assert.True(t, IsMalformed(err))
	assert.Less(t, endless.n, 64*1024)

	// no limits configured, the size line is still capped
	endless = &zeroReader{}
	_, err = NewDecoder(io.MultiReader(strings.NewReader(head), endless)).Decode()
	assert.True(t, errors.Is(err, ErrInvalidChunk), err)
	assert.Less(t, endless.n, 64*1024)

	ext := "3;" + strings.Repeat("x", 5000) + "\r\nabc\r\n0\r\n\r\n"
	_, err = NewDecoder(strings.NewReader(head + ext)).Decode()
	assert.True(t, errors.Is(err, ErrInvalidChunk), err)

	overrun := "3\r\nabc" + strings.Repeat("y", 5000) + "\r\n0\r\n\r\n"
	_, err = NewDecoder(strings.NewReader(head + overrun)).Decode()
	assert.True(t, IsMalformed(err), err)
}

func TestDecodeChunkedTrailerLimit(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n0\r\n" +
		"X-Trailer: " + strings.Repeat("t", 300) + "\r\n\r\n"
	_, err := NewDecoder(strings.NewReader(raw), WithMaxHeaderBytes(256)).Decode()
	assert.True(t, errors.Is(err, ErrHeaderTooLarge), err)
	assert.True(t, IsMalformed(err))

	req, err := NewDecoder(strings.NewReader(raw), WithMaxHeaderBytes(1024)).Decode()
	require.NoError(t, err)
	assert.Equal(t, "abc", req.BodyString())
}

func TestDecodeReadError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := NewDecoder(iotest.ErrReader(boom)).Decode()
	assert.True(t, errors.Is(err, boom))
}

func TestRequestRoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte("Hello, world!"),
		[]byte("line1\r\nline2\n\nHost: not-a-header\r\n\r\n"),
		{0x00, 0x01, 0xfe, 0xff, '\n'},
		[]byte(strings.Repeat("x", 70000)),
		[]byte("多字节文本"),
	}

	for _, body := range bodies {
		req := NewRequest(MethodPost, "/echo", Version11)
		req.Headers["Host"] = "localhost"
		req.Headers["Content-Length"] = "1"
		req.Body = body

		decoded, err := NewDecoder(bytes.NewReader(req.Bytes())).Decode()
		require.NoError(t, err)
		assert.Equal(t, body, decoded.Body)
		assert.Equal(t, req.Method, decoded.Method)
		assert.Equal(t, req.Resource, decoded.Resource)
		assert.Equal(t, "localhost", decoded.Headers["Host"])
	}
}
