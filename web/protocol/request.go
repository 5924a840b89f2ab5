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
	"bytes"
	"sort"
	"strconv"
	"strings"
)

type Method int

const (
	MethodUninitialized Method = iota
	MethodGet
	MethodPost
)

func ParseMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	default:
		return MethodUninitialized
	}
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	default:
		return "UNINITIALIZED"
	}
}

type Version int

const (
	VersionUninitialized Version = iota
	Version10
	Version11
)

func ParseVersion(s string) Version {
	switch s {
	case "HTTP/1.0":
		return Version10
	case "HTTP/1.1":
		return Version11
	default:
		return VersionUninitialized
	}
}

func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	default:
		return "UNINITIALIZED"
	}
}

// Resource is either a request path or uninitialized. The zero value is uninitialized.
type Resource struct {
	path string
	ok   bool
}

func PathResource(path string) Resource {
	return Resource{path: path, ok: true}
}

// Path returns "" for an uninitialized resource.
func (r Resource) Path() string {
	return r.path
}

func (r Resource) IsPath() bool {
	return r.ok
}

func (r Resource) String() string {
	if !r.ok {
		return "UNINITIALIZED"
	}
	return r.path
}

type Request struct {
	Method   Method
	Resource Resource
	Version  Version
	// keys as received, last write wins
	Headers map[string]string
	Body    []byte
}

func NewRequest(method Method, path string, version Version) *Request {
	return &Request{
		Method:   method,
		Resource: PathResource(path),
		Version:  version,
		Headers:  make(map[string]string),
	}
}

// Header looks a header up case-insensitively, an exact match wins.
func (r *Request) Header(name string) (string, bool) {
	if v, ok := r.Headers[name]; ok {
		return v, true
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (r *Request) Path() string {
	return r.Resource.Path()
}

func (r *Request) BodyString() string {
	return string(r.Body)
}

// ContentLength returns the declared body length, 0 when absent or not a number.
func (r *Request) ContentLength() int {
	v, ok := r.Header(HeaderContentLength)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (r *Request) IsChunked() bool {
	v, ok := r.Header(HeaderTransferEncoding)
	return ok && strings.EqualFold(strings.TrimSpace(v), "chunked")
}

// Bytes encodes the request with a Content-Length computed from Body.
// Caller supplied Content-Length and Transfer-Encoding headers are dropped.
func (r *Request) Bytes() []byte {
	buf := bytes.Buffer{}
	buf.WriteString(r.Method.String())
	buf.WriteByte(' ')
	buf.WriteString(r.Resource.String())
	buf.WriteByte(' ')
	buf.WriteString(r.Version.String())
	buf.WriteString(crlf)

	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		if strings.EqualFold(k, HeaderContentLength) || strings.EqualFold(k, HeaderTransferEncoding) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(r.Headers[k])
		buf.WriteString(crlf)
	}
	if len(r.Body) > 0 {
		buf.WriteString(HeaderContentLength)
		buf.WriteString(": ")
		buf.WriteString(strconv.Itoa(len(r.Body)))
		buf.WriteString(crlf)
	}
	buf.WriteString(crlf)
	buf.Write(r.Body)
	return buf.Bytes()
}
