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

package cache

import (
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// Config 基于github.com/patrickmn/go-cache的文件内容缓存配置
type Config struct {
	Enable      bool          `yaml:"enable"`
	Preload     bool          `yaml:"preload"`                       // 启动时预加载root下的文件
	Expiration  time.Duration `yaml:"expiration" default:"10m"`      // key超时时间，<=0表示永不过期
	MaxFileSize int64         `yaml:"maxFileSize" default:"1048576"` // 超过该大小的文件不缓存
	MaxEntries  int           `yaml:"maxEntries" default:"1024"`     // 缓存文件数上限
	Cleanup     time.Duration `yaml:"cleanupInterval" default:"1m"`  // 清理内存中超时key的时间间隔
}

type entry struct {
	data    []byte
	size    int64
	modTime time.Time
}

// FileCache keeps file contents keyed by canonical path. An entry is served
// only while the size and modification time it was stored with still match
// the file on disk.
type FileCache struct {
	c           *cache.Cache
	maxFileSize int64
	maxEntries  int

	hits   int64
	misses int64
}

func NewFileCache(config Config) *FileCache {
	expiration := config.Expiration
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	cleanup := config.Cleanup
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &FileCache{
		c:           cache.New(expiration, cleanup),
		maxFileSize: config.MaxFileSize,
		maxEntries:  config.MaxEntries,
	}
}

// Get returns the cached contents of path when they were stored for the same size and mtime.
func (f *FileCache) Get(path string, size int64, modTime time.Time) ([]byte, bool) {
	v, ok := f.c.Get(path)
	if ok {
		e := v.(*entry)
		if e.size == size && e.modTime.Equal(modTime) {
			atomic.AddInt64(&f.hits, 1)
			return e.data, true
		}
		// stale
		f.c.Delete(path)
	}
	atomic.AddInt64(&f.misses, 1)
	return nil, false
}

// Put stores data and reports whether it was accepted. Files over the size
// limit, or any new file once the entry limit is reached, are skipped.
func (f *FileCache) Put(path string, size int64, modTime time.Time, data []byte) bool {
	if f.maxFileSize > 0 && size > f.maxFileSize {
		return false
	}
	if _, exists := f.c.Get(path); !exists && f.maxEntries > 0 && f.c.ItemCount() >= f.maxEntries {
		return false
	}
	f.c.SetDefault(path, &entry{data: data, size: size, modTime: modTime})
	return true
}

func (f *FileCache) Delete(path string) {
	f.c.Delete(path)
}

func (f *FileCache) Flush() {
	f.c.Flush()
}

func (f *FileCache) Len() int {
	return f.c.ItemCount()
}

func (f *FileCache) Hits() int64 {
	return atomic.LoadInt64(&f.hits)
}

func (f *FileCache) Misses() int64 {
	return atomic.LoadInt64(&f.misses)
}
