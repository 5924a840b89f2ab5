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

package resource

import (
	"path/filepath"
	"strings"
)

const (
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeHTML        = "text/html; charset=utf-8"
)

// ContentType classifies a file by its extension, case-insensitively.
// Unknown extensions are served as binary application/octet-stream.
func ContentType(name string) (value string, binary bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return ContentTypeHTML, false
	case ".css":
		return "text/css; charset=utf-8", false
	case ".js":
		return "text/javascript; charset=utf-8", false
	case ".json":
		return "application/json; charset=utf-8", false
	case ".xml":
		return "application/xml; charset=utf-8", false
	case ".txt":
		return "text/plain; charset=utf-8", false
	case ".csv":
		return "text/csv; charset=utf-8", false
	case ".md":
		return "text/markdown; charset=utf-8", false

	case ".png":
		return "image/png", true
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".gif":
		return "image/gif", true
	case ".ico":
		return "image/x-icon", true
	case ".svg":
		return "image/svg+xml", true
	case ".woff":
		return "font/woff", true
	case ".woff2":
		return "font/woff2", true
	case ".ttf":
		return "font/ttf", true
	case ".eot":
		return "font/eot", true
	case ".otf":
		return "font/otf", true
	case ".wasm":
		return "application/wasm", true
	case ".pdf":
		return "application/pdf", true
	case ".zip":
		return "application/zip", true
	case ".tar":
		return "application/x-tar", true
	case ".gz":
		return "application/gzip", true
	case ".bz2":
		return "application/x-bzip2", true
	default:
		return ContentTypeOctetStream, true
	}
}

// IsText reports whether a content type is worth compressing.
func IsText(value string) bool {
	return strings.HasPrefix(value, "text/") ||
		strings.HasPrefix(value, "application/json") ||
		strings.HasPrefix(value, "application/xml") ||
		strings.HasPrefix(value, "image/svg+xml")
}
