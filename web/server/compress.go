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

package server

import (
	"strconv"
	"strings"

	"github.com/caiflower/staticd/pkg/tools"
	"github.com/caiflower/staticd/web/protocol"
	"github.com/caiflower/staticd/web/resource"
)

const (
	encodingBrotli = "br"
	encodingGzip   = "gzip"
)

// negotiateEncoding picks br, then gzip, from an Accept-Encoding value.
// Codings listed with q=0 are refused. "" means identity.
func negotiateEncoding(accept string) string {
	accepted := map[string]bool{}
	for _, part := range strings.Split(accept, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		accepted[name] = qualityOf(params) > 0
	}

	for _, enc := range []string{encodingBrotli, encodingGzip} {
		if ok, listed := accepted[enc]; listed {
			if ok {
				return enc
			}
			continue
		}
		if accepted["*"] {
			return enc
		}
	}
	return ""
}

func qualityOf(params string) float64 {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(k) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return q
	}
	return 1
}

// compressResponse rewrites a successful text-like body in place. It
// returns the encoding applied, or "" when the response is left untouched.
func compressResponse(resp *protocol.Response, acceptEncoding string, minSize int) (string, error) {
	if resp.StatusCode != protocol.StatusOK {
		return "", nil
	}
	if _, ok := resp.Header(protocol.HeaderContentEncoding); ok {
		return "", nil
	}
	contentType, _ := resp.Header(protocol.HeaderContentType)
	if !resource.IsText(contentType) {
		return "", nil
	}
	body := resp.Body()
	if len(body) < minSize {
		return "", nil
	}

	enc := negotiateEncoding(acceptEncoding)
	var (
		compressed []byte
		err        error
	)
	switch enc {
	case encodingBrotli:
		compressed, err = tools.Brotli(body)
	case encodingGzip:
		compressed, err = tools.Gzip(body)
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}

	resp.SetBinaryBody(compressed)
	resp.SetHeader(protocol.HeaderContentEncoding, enc)
	resp.SetHeader(protocol.HeaderVary, protocol.HeaderAcceptEncoding)
	return enc, nil
}
