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
	"io"
	"strconv"
	"strings"
)

const (
	crlf = "\r\n"

	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderContentEncoding  = "Content-Encoding"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderAcceptEncoding   = "Accept-Encoding"
	HeaderConnection       = "Connection"
	HeaderServer           = "Server"
	HeaderVary             = "Vary"

	StatusOK                  = 200
	StatusNotFound            = 404
	StatusInternalServerError = 500
	StatusServiceUnavailable  = 503

	DefaultContentType = "text/html"
)

// StatusText maps the codes this server produces. Anything else falls
// back to "Not Found".
// TODO: confirm whether unknown codes should get their canonical reason phrase.
func StatusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusServiceUnavailable:
		return "Service Unavailable"
	default:
		return "Not Found"
	}
}

type bodyKind int

const (
	bodyText bodyKind = iota
	bodyBinary
)

// Response owns all of its fields. It carries either a text or a binary body, never both.
type Response struct {
	Version    Version
	StatusCode int
	StatusText string
	Headers    map[string]string

	kind   bodyKind
	text   string
	binary []byte
}

// NewTextResponse defaults headers to Content-Type: text/html when headers is nil.
func NewTextResponse(code int, headers map[string]string, body string) *Response {
	if headers == nil {
		headers = map[string]string{HeaderContentType: DefaultContentType}
	}
	return &Response{
		Version:    Version11,
		StatusCode: code,
		StatusText: StatusText(code),
		Headers:    headers,
		kind:       bodyText,
		text:       body,
	}
}

// NewBinaryResponse leaves headers empty when headers is nil.
func NewBinaryResponse(code int, headers map[string]string, body []byte) *Response {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &Response{
		Version:    Version11,
		StatusCode: code,
		StatusText: StatusText(code),
		Headers:    headers,
		kind:       bodyBinary,
		binary:     body,
	}
}

func (resp *Response) IsBinary() bool {
	return resp.kind == bodyBinary
}

func (resp *Response) Text() string {
	return resp.text
}

// Body returns the wire bytes of whichever body the response carries.
func (resp *Response) Body() []byte {
	if resp.kind == bodyBinary {
		return resp.binary
	}
	return []byte(resp.text)
}

func (resp *Response) SetTextBody(body string) {
	resp.kind = bodyText
	resp.text = body
	resp.binary = nil
}

func (resp *Response) SetBinaryBody(body []byte) {
	resp.kind = bodyBinary
	resp.binary = body
	resp.text = ""
}

// SetHeader replaces any header with the same name regardless of case.
func (resp *Response) SetHeader(key, value string) {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	for k := range resp.Headers {
		if strings.EqualFold(k, key) {
			delete(resp.Headers, k)
		}
	}
	resp.Headers[key] = value
}

func (resp *Response) Header(key string) (string, bool) {
	for k, v := range resp.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// ContentLength is the byte length of the body, the value sent as Content-Length.
func (resp *Response) ContentLength() int {
	if resp.kind == bodyBinary {
		return len(resp.binary)
	}
	return len(resp.text)
}

func (resp *Response) writeHead(w io.StringWriter) {
	statusText := resp.StatusText
	if statusText == "" {
		statusText = StatusText(resp.StatusCode)
	}
	_, _ = w.WriteString(resp.Version.String() + " " + strconv.Itoa(resp.StatusCode) + " " + statusText + crlf)

	for key, value := range resp.Headers {
		// always recomputed below
		if strings.EqualFold(key, HeaderContentLength) {
			continue
		}
		_, _ = w.WriteString(key + ": " + value + crlf)
	}
	_, _ = w.WriteString(HeaderContentLength + ": " + strconv.Itoa(resp.ContentLength()) + crlf + crlf)
}

// Bytes serialises the full response.
func (resp *Response) Bytes() []byte {
	buf := &bytes.Buffer{}
	resp.writeHead(buf)
	if resp.kind == bodyBinary {
		buf.Write(resp.binary)
	} else {
		buf.WriteString(resp.text)
	}
	return buf.Bytes()
}

func (resp *Response) String() string {
	return string(resp.Bytes())
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteTo writes and flushes the response. Nothing is considered sent until Flush succeeds.
func (resp *Response) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	bw := bufio.NewWriter(cw)
	resp.writeHead(bw)

	var err error
	if resp.kind == bodyBinary {
		_, err = bw.Write(resp.binary)
	} else {
		_, err = bw.WriteString(resp.text)
	}
	if err == nil {
		err = bw.Flush()
	}
	return cw.n, err
}
