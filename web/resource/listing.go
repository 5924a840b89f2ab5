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
	"bytes"
	"html/template"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Index of {{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .container { max-width: 800px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        .nav { margin-bottom: 20px; padding: 10px; background: #f8f9fa; border-radius: 4px; }
        .nav a { color: #007bff; text-decoration: none; }
        h1 { color: #333; margin-bottom: 20px; }
        .item { padding: 8px 12px; margin: 2px 0; border-radius: 4px; }
        .item:hover { background-color: #f8f9fa; }
        .item a { color: #333; text-decoration: none; }
    </style>
</head>
<body>
    <div class="container">
        <h1>&#x1F4C2; Index of {{.Title}}</h1>
        {{- if .Parent}}
        <div class="nav"><a href="{{.Parent}}">&larr; Parent directory</a></div>
        {{- end}}
        <div class="content">
        {{- range .Entries}}
            <div class="item"><a href="{{.Link}}">{{if .IsDir}}&#x1F4C1;{{else}}&#x1F4C4;{{end}} {{.Name}}</a></div>
        {{- else}}
            <p>Empty directory</p>
        {{- end}}
        </div>
    </div>
</body>
</html>
`))

type listingData struct {
	Title   string
	Parent  string
	Entries []Entry
}

// RenderListing renders a directory page. parent is empty at the served root.
func RenderListing(title, parent string, entries []Entry) (string, error) {
	buf := &bytes.Buffer{}
	if err := listingTemplate.Execute(buf, listingData{Title: title, Parent: parent, Entries: entries}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
