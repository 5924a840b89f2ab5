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

package limiter

import "time"

type Limiter interface {
	TakeToken()
	TakeTokenNonBlocking() bool
	TakeTokenWithTimeout(timeout time.Duration) bool
}

// Config switches per-connection admission on. Qos is tokens per second, Burst
// the bucket size. A zero Burst means Qos.
type Config struct {
	Enable bool `yaml:"enable"`
	Qos    int  `yaml:"qos" default:"1000"`
	Burst  int  `yaml:"burst"`
}

// New returns nil when the limiter is disabled.
func New(c Config) Limiter {
	if !c.Enable || c.Qos <= 0 {
		return nil
	}
	burst := c.Burst
	if burst <= 0 {
		burst = c.Qos
	}
	return NewXTokenBucket(c.Qos, burst)
}
