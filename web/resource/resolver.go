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
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/caiflower/staticd/pkg/cache"
	"github.com/caiflower/staticd/pkg/logger"
	"github.com/caiflower/staticd/pkg/pool"
	"github.com/caiflower/staticd/web/protocol"
	"golang.org/x/exp/slices"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrPathTraversal is never visible to clients, it is answered like ErrNotFound.
	ErrPathTraversal = errors.New("path escapes the served root")
	ErrRootNotDir    = errors.New("root is not a directory")
)

const preloadWorkers = 8

type Kind int

const (
	KindNotFound Kind = iota
	KindFile
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "not-found"
	}
}

// Entry is one line of a directory listing.
type Entry struct {
	Name  string
	IsDir bool
	// Link is the escaped URL path of the entry relative to the served root.
	Link string
}

// Result is what a request path resolved to. A file carries exactly one of
// Text or Data depending on Binary.
type Result struct {
	Kind        Kind
	Path        string // cleaned request path
	ContentType string
	Binary      bool
	Text        string
	Data        []byte
	Entries     []Entry
	Parent      string // empty at the served root
}

type Option func(*Resolver)

func WithCache(c *cache.FileCache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

func WithLogger(log logger.ILog) Option {
	return func(r *Resolver) {
		r.logger = log
	}
}

// WithNotFoundPage sets a page, relative to the root, served as the body of every 404.
func WithNotFoundPage(page string) Option {
	return func(r *Resolver) {
		r.notFoundPage = page
	}
}

// Resolver maps request paths onto files below one root directory. The root
// is treated as read-only, a Resolver is safe for concurrent use.
type Resolver struct {
	root         string
	cache        *cache.FileCache
	logger       logger.ILog
	notFoundPage string
}

func NewResolver(root string, opts ...Option) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}

	r := &Resolver{
		root:   canonical,
		logger: logger.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the canonical root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve never fails: every error becomes a not-found result and is only logged.
func (r *Resolver) Resolve(requestPath string) Result {
	res, err := r.Lookup(requestPath)
	if err != nil {
		if errors.Is(err, ErrPathTraversal) {
			r.logger.Warn("[resolver] %v", err)
		} else {
			r.logger.Debug("[resolver] %v", err)
		}
		return Result{Kind: KindNotFound, Path: res.Path}
	}
	return res
}

// Lookup resolves requestPath and reports why it could not be served.
func (r *Resolver) Lookup(requestPath string) (Result, error) {
	p := requestPath
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	unescaped, err := url.PathUnescape(p)
	if err != nil || strings.IndexByte(unescaped, 0) >= 0 {
		return Result{Kind: KindNotFound, Path: p}, fmt.Errorf("%w: bad escape in %q", ErrNotFound, requestPath)
	}
	if !strings.HasPrefix(unescaped, "/") {
		unescaped = "/" + unescaped
	}
	res := Result{Kind: KindNotFound, Path: path.Clean(unescaped)}

	// Join cleans the result, so ".." segments may already climb above root here
	candidate := filepath.Join(r.root, filepath.FromSlash(unescaped))
	canonical, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrNotFound, requestPath, err)
	}
	if !r.contains(canonical) {
		return res, fmt.Errorf("%w: %s -> %s is outside %s", ErrPathTraversal, requestPath, canonical, r.root)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrNotFound, requestPath, err)
	}

	switch {
	case info.IsDir():
		return r.directory(res, canonical)
	case info.Mode().IsRegular():
		return r.file(res, canonical, info)
	default:
		return res, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, requestPath)
	}
}

func (r *Resolver) contains(canonical string) bool {
	if canonical == r.root {
		return true
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(canonical, prefix)
}

func (r *Resolver) directory(res Result, dir string) (Result, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("%w: read dir %s: %v", ErrNotFound, res.Path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		isDir := de.IsDir()
		if de.Type()&fs.ModeSymlink != 0 {
			// only links that resolve inside the root are listed, and only
			// those are stat'ed
			target, err := filepath.EvalSymlinks(filepath.Join(dir, de.Name()))
			if err != nil || !r.contains(target) {
				continue
			}
			info, err := os.Stat(target)
			if err != nil {
				continue
			}
			isDir = info.IsDir()
		}
		link := (&url.URL{Path: path.Join(res.Path, de.Name())}).EscapedPath()
		entries = append(entries, Entry{Name: de.Name(), IsDir: isDir, Link: link})
	}
	slices.SortStableFunc(entries, func(a, b Entry) bool {
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})

	res.Kind = KindDirectory
	res.ContentType = ContentTypeHTML
	res.Entries = entries
	if res.Path != "/" {
		res.Parent = (&url.URL{Path: path.Dir(res.Path)}).EscapedPath()
	}
	return res, nil
}

func (r *Resolver) file(res Result, name string, info os.FileInfo) (Result, error) {
	data, err := r.readFile(name, info.Size(), info.ModTime())
	if err != nil {
		return res, fmt.Errorf("%w: read %s: %v", ErrNotFound, res.Path, err)
	}

	res.ContentType, res.Binary = ContentType(name)
	if res.Binary {
		res.Data = data
	} else {
		if !utf8.Valid(data) {
			return res, fmt.Errorf("%w: %s is not valid utf-8 text", ErrNotFound, res.Path)
		}
		res.Text = string(data)
	}
	res.Kind = KindFile
	return res, nil
}

func (r *Resolver) readFile(name string, size int64, modTime time.Time) ([]byte, error) {
	if r.cache != nil {
		if data, ok := r.cache.Get(name, size, modTime); ok {
			return data, nil
		}
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Put(name, size, modTime, data)
	}
	return data, nil
}

// Preload walks the root and stores regular files in the cache, reading them
// on preloadWorkers goroutines. Symlinks are not followed. It returns the
// number of files cached.
func (r *Resolver) Preload() (int, error) {
	if r.cache == nil {
		return 0, nil
	}

	type candidate struct {
		name    string
		size    int64
		modTime time.Time
	}
	var files []candidate
	err := filepath.WalkDir(r.root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtree, keep going
			r.logger.Warn("[resolver] preload skip %s: %v", name, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if _, ok := r.cache.Get(name, info.Size(), info.ModTime()); !ok {
			files = append(files, candidate{name: name, size: info.Size(), modTime: info.ModTime()})
		}
		return nil
	})

	var n int64
	if perr := pool.DoFunc(preloadWorkers, func(c candidate) {
		data, err := os.ReadFile(c.name)
		if err != nil {
			r.logger.Warn("[resolver] preload read %s: %v", c.name, err)
			return
		}
		if r.cache.Put(c.name, c.size, c.modTime, data) {
			atomic.AddInt64(&n, 1)
		}
	}, files...); perr != nil && err == nil {
		err = perr
	}
	return int(n), err
}

// Response turns a result into a 200, or into the 404 response for not-found.
func (r *Resolver) Response(res Result) *protocol.Response {
	switch res.Kind {
	case KindFile:
		headers := map[string]string{protocol.HeaderContentType: res.ContentType}
		if res.Binary {
			return protocol.NewBinaryResponse(protocol.StatusOK, headers, res.Data)
		}
		return protocol.NewTextResponse(protocol.StatusOK, headers, res.Text)
	case KindDirectory:
		page, err := RenderListing(res.Path, res.Parent, res.Entries)
		if err != nil {
			r.logger.Error("[resolver] render listing %s: %v", res.Path, err)
			return r.NotFound()
		}
		return protocol.NewTextResponse(protocol.StatusOK, map[string]string{protocol.HeaderContentType: ContentTypeHTML}, page)
	default:
		return r.NotFound()
	}
}

// NotFound is the 404 response, with the configured page as body when it resolves to a text file.
func (r *Resolver) NotFound() *protocol.Response {
	body := ""
	if r.notFoundPage != "" {
		res, err := r.Lookup("/" + strings.TrimPrefix(filepath.ToSlash(r.notFoundPage), "/"))
		if err == nil && res.Kind == KindFile && !res.Binary {
			body = res.Text
		} else if err != nil {
			r.logger.Debug("[resolver] not found page: %v", err)
		}
	}
	return protocol.NewTextResponse(protocol.StatusNotFound, nil, body)
}

// Serve resolves requestPath and builds its response.
func (r *Resolver) Serve(requestPath string) *protocol.Response {
	return r.Response(r.Resolve(requestPath))
}
