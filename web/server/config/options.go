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

package config

import (
	"net"
	"reflect"
	"strconv"
	"time"

	"github.com/caiflower/staticd/pkg/cache"
	"github.com/caiflower/staticd/pkg/limiter"
	"github.com/caiflower/staticd/pkg/tools"
)

type Option func(*Options) *Options

type Options struct {
	Name               string            `yaml:"name" default:"staticd"`
	Host               string            `yaml:"host" default:"127.0.0.1"`
	Port               uint              `yaml:"port" default:"7878"`
	Root               string            `yaml:"root" default:"."`                      // 静态资源根目录，启动时必须存在
	Workers            int               `yaml:"workers" default:"4"`                   // 处理连接的worker数量
	ReadTimeout        time.Duration     `yaml:"readTimeout" default:"20s"`             // 读取请求的超时时间，<0表示不限制
	WriteTimeout       time.Duration     `yaml:"writeTimeout" default:"35s"`            // 写响应的超时时间，<0表示不限制
	MaxHeaderBytes     int               `yaml:"maxHeaderBytes" default:"1048576"`      // 请求行+请求头大小上限，<0表示不限制
	MaxRequestBodySize int               `yaml:"maxRequestBodySize" default:"10485760"` // 10MB，<0表示不限制
	NotFoundPage       string            `yaml:"notFoundPage"`                          // 404页面，相对root
	Compress           bool              `yaml:"compress"`                              // 按Accept-Encoding压缩文本响应
	MinCompressSize    int               `yaml:"minCompressSize" default:"1024"`        // 小于该大小的响应不压缩
	Cache              cache.Config      `yaml:"cache"`
	Limiter            limiter.Config    `yaml:"limiter"`
	MetricsAddr        string            `yaml:"metricsAddr"` // prometheus监听地址，为空时不开启
	StatsCron          string            `yaml:"statsCron"`   // 打印统计日志的cron表达式，为空时不开启
	ListenConfig       *net.ListenConfig `yaml:"-"`
}

func NewOptions(opts []Option) *Options {
	options := &Options{}
	options.SetDefaults()

	for _, opt := range opts {
		options = opt(options)
	}
	return options
}

// SetDefaults fills every zero field from its default tag. It runs once, in
// NewOptions or when the yaml config is loaded, so a zero set afterwards by a
// With* option or a command line flag is kept.
func (o *Options) SetDefaults() {
	tools.DoTagFunc(o, []func(reflect.StructField, reflect.Value){tools.SetDefaultValueIfNil})
}

func (o *Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.FormatUint(uint64(o.Port), 10))
}

func WithName(name string) Option {
	return func(opts *Options) *Options {
		opts.Name = name
		return opts
	}
}

func WithHost(host string) Option {
	return func(opts *Options) *Options {
		opts.Host = host
		return opts
	}
}

func WithPort(port uint) Option {
	return func(opts *Options) *Options {
		opts.Port = port
		return opts
	}
}

func WithRoot(root string) Option {
	return func(opts *Options) *Options {
		opts.Root = root
		return opts
	}
}

func WithWorkers(workers int) Option {
	return func(opts *Options) *Options {
		opts.Workers = workers
		return opts
	}
}

func WithReadTimeout(readTimeout time.Duration) Option {
	return func(opts *Options) *Options {
		opts.ReadTimeout = readTimeout
		return opts
	}
}

func WithWriteTimeout(writeTimeout time.Duration) Option {
	return func(opts *Options) *Options {
		opts.WriteTimeout = writeTimeout
		return opts
	}
}

func WithLimits(maxHeaderBytes, maxRequestBodySize int) Option {
	return func(opts *Options) *Options {
		opts.MaxHeaderBytes = maxHeaderBytes
		opts.MaxRequestBodySize = maxRequestBodySize
		return opts
	}
}

func WithNotFoundPage(page string) Option {
	return func(opts *Options) *Options {
		opts.NotFoundPage = page
		return opts
	}
}

func WithCompress(enable bool, minSize int) Option {
	return func(opts *Options) *Options {
		opts.Compress = enable
		opts.MinCompressSize = minSize
		return opts
	}
}

func WithCache(c cache.Config) Option {
	return func(opts *Options) *Options {
		opts.Cache = c
		return opts
	}
}

// WithLimiter admits at most qos connections per second. Excess connections get a 503.
func WithLimiter(qos, burst int) Option {
	return func(opts *Options) *Options {
		opts.Limiter = limiter.Config{Enable: qos > 0, Qos: qos, Burst: burst}
		return opts
	}
}

func WithMetricsAddr(addr string) Option {
	return func(opts *Options) *Options {
		opts.MetricsAddr = addr
		return opts
	}
}

func WithStatsCron(spec string) Option {
	return func(opts *Options) *Options {
		opts.StatsCron = spec
		return opts
	}
}

func WithListenConfig(listenConfig *net.ListenConfig) Option {
	return func(opts *Options) *Options {
		opts.ListenConfig = listenConfig
		return opts
	}
}
