/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	defaultReadBufferSize = 4096
	maxPrealloc           = 64 * 1024

	maxChunkLineBytes = 4096      // chunk size or terminator line, extensions included
	maxTrailerBytes   = 64 * 1024 // trailer section when no header limit is set
)

type DecoderOption func(*Decoder)

// WithMaxHeaderBytes bounds the request line plus headers. 0 disables the check.
func WithMaxHeaderBytes(n int) DecoderOption {
	return func(d *Decoder) {
		d.maxHeaderBytes = n
	}
}

// WithMaxBodySize bounds the decoded body. 0 disables the check.
func WithMaxBodySize(n int) DecoderOption {
	return func(d *Decoder) {
		d.maxBodySize = n
	}
}

// Decoder reads one request from a byte stream. Body reads are always for a
// byte count the peer declared up front, so a truncated stream surfaces as
// io.ErrUnexpectedEOF instead of blocking for more input.
type Decoder struct {
	r              *bufio.Reader
	maxHeaderBytes int
	maxBodySize    int
}

func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, defaultReadBufferSize)
	}
	d := &Decoder{r: br}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reads the head up to the blank line, then a Content-Length or
// chunked body. A request line that is not exactly three tokens is not an
// error, the method, resource and version are left uninitialized.
func (d *Decoder) Decode() (*Request, error) {
	req, leaked, ended, err := d.decodeHead()
	if err != nil {
		return nil, err
	}
	if !ended {
		// peer closed before the blank line, nothing more to read
		req.Body = joinBody(leaked, nil)
		return req, nil
	}

	var body []byte
	if n := req.ContentLength(); n > 0 {
		if d.maxBodySize > 0 && n > d.maxBodySize {
			return nil, fmt.Errorf("%w: content-length %d exceeds %d", ErrBodyTooLarge, n, d.maxBodySize)
		}
		if body, err = d.readN(n); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	} else if req.IsChunked() {
		if body, err = d.readChunked(); err != nil {
			return nil, err
		}
	}

	req.Body = joinBody(leaked, body)
	return req, nil
}

// Parse decodes an already buffered message. The head follows the same rules
// as Decode; everything after the blank line is the body, de-chunked when the
// request says so. Content-Length is not consulted.
func Parse(raw []byte) *Request {
	d := NewDecoder(bytes.NewReader(raw))
	req, leaked, ended, err := d.decodeHead()
	if err != nil {
		return &Request{Headers: make(map[string]string)}
	}

	var body []byte
	if ended {
		if req.IsChunked() {
			// keep whatever decoded cleanly
			body, _ = d.readChunked()
		} else {
			body, _ = io.ReadAll(d.r)
		}
	}
	req.Body = joinBody(leaked, body)
	return req
}

// decodeHead returns the request, the header-section lines that had no colon,
// and whether the blank line terminator was seen.
func (d *Decoder) decodeHead() (req *Request, leaked []string, ended bool, err error) {
	var budget *int
	if d.maxHeaderBytes > 0 {
		n := d.maxHeaderBytes
		budget = &n
	}
	tooLarge := fmt.Errorf("%w: limit %d bytes", ErrHeaderTooLarge, d.maxHeaderBytes)
	req = &Request{Headers: make(map[string]string)}

	first := true
	for {
		line, lerr := d.readLine(budget, tooLarge)
		if lerr != nil {
			if errors.Is(lerr, io.EOF) {
				if first {
					return nil, nil, false, fmt.Errorf("%w: %v", ErrEmptyRequest, lerr)
				}
				return req, leaked, false, nil
			}
			return nil, nil, false, lerr
		}

		if first {
			first = false
			parseRequestLine(req, line)
			if line == "" {
				return req, leaked, true, nil
			}
			continue
		}
		if line == "" {
			return req, leaked, true, nil
		}

		if key, value, ok := splitHeader(line); ok {
			req.Headers[key] = value
		} else {
			// legacy: stray lines in the header section become body text
			leaked = append(leaked, line)
		}
	}
}

func parseRequestLine(req *Request, line string) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		req.Method = MethodUninitialized
		req.Resource = Resource{}
		req.Version = VersionUninitialized
		return
	}
	req.Method = ParseMethod(parts[0])
	req.Resource = PathResource(parts[1])
	req.Version = ParseVersion(parts[2])
}

func splitHeader(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// readLine returns one line without its CRLF or LF. A final line without a
// terminator is returned as is; io.EOF only comes back when nothing was read.
// A non-nil budget is charged for every byte consumed, and the read fails
// with tooLarge as soon as it goes negative.
func (d *Decoder) readLine(budget *int, tooLarge error) (string, error) {
	var line []byte
	for {
		frag, err := d.r.ReadSlice('\n')
		if budget != nil {
			*budget -= len(frag)
			if *budget < 0 {
				return "", tooLarge
			}
		}
		line = append(line, frag...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			break
		}
		return "", err
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(line), nil
}

// readChunkLine reads a size or terminator line of at most maxChunkLineBytes.
func (d *Decoder) readChunkLine() (string, error) {
	budget := maxChunkLineBytes
	return d.readLine(&budget, fmt.Errorf("%w: line exceeds %d bytes", ErrInvalidChunk, maxChunkLineBytes))
}

// readN reads exactly n bytes. The buffer grows with the data actually
// received, a large declared length does not allocate up front.
func (d *Decoder) readN(n int) ([]byte, error) {
	buf := bytes.Buffer{}
	if n < maxPrealloc {
		buf.Grow(n)
	} else {
		buf.Grow(maxPrealloc)
	}
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		return nil, unexpected(err)
	}
	return buf.Bytes(), nil
}

// readChunked decodes a chunked body. On error the chunks decoded so far are returned with it.
func (d *Decoder) readChunked() ([]byte, error) {
	var body []byte
	for {
		line, err := d.readChunkLine()
		if err != nil {
			return body, fmt.Errorf("read chunk size: %w", unexpected(err))
		}
		size, err := parseChunkSize(line)
		if err != nil {
			return body, err
		}

		if size == 0 {
			// last-chunk, then optional trailers up to the blank line
			limit := d.maxHeaderBytes
			if limit <= 0 {
				limit = maxTrailerBytes
			}
			budget := limit
			tooLarge := fmt.Errorf("%w: chunk trailers exceed %d bytes", ErrHeaderTooLarge, limit)
			for {
				trailer, err := d.readLine(&budget, tooLarge)
				if err != nil {
					return body, fmt.Errorf("read chunk trailer: %w", unexpected(err))
				}
				if trailer == "" {
					return body, nil
				}
			}
		}

		if d.maxBodySize > 0 && len(body)+size > d.maxBodySize {
			return body, fmt.Errorf("%w: chunked body exceeds %d", ErrBodyTooLarge, d.maxBodySize)
		}
		chunk, err := d.readN(size)
		if err != nil {
			return body, fmt.Errorf("read chunk data: %w", err)
		}
		body = append(body, chunk...)

		end, err := d.readChunkLine()
		if err != nil {
			return body, fmt.Errorf("read chunk terminator: %w", unexpected(err))
		}
		if end != "" {
			return body, fmt.Errorf("%w: chunk longer than its declared size %d", ErrMalformed, size)
		}
	}
}

func parseChunkSize(line string) (int, error) {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, fmt.Errorf("%w: empty size line", ErrInvalidChunk)
	}
	size, err := strconv.ParseInt(line, 16, 32)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChunk, line)
	}
	return int(size), nil
}

func joinBody(leaked []string, body []byte) []byte {
	if len(leaked) == 0 {
		return body
	}
	text := strings.Join(leaked, "\n")
	if len(body) == 0 {
		return []byte(text)
	}
	out := make([]byte, 0, len(text)+1+len(body))
	out = append(out, text...)
	out = append(out, '\n')
	return append(out, body...)
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
