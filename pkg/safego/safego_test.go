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

package safego

import (
	"sync"
	"sync/atomic"
	"testing"

	golocalv1 "github.com/caiflower/staticd/pkg/golocal/v1"
	"github.com/stretchr/testify/assert"
)

func TestSafeGo(t *testing.T) {
	var count int64
	wg := &sync.WaitGroup{}
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		Go(func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
	}
	wg.Wait()
	assert.EqualValues(t, 1000, count)
}

func TestSafeGoPanic(t *testing.T) {
	wg := &sync.WaitGroup{}
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		golocalv1.PutTraceID("panic")
		defer golocalv1.Clean()
		panic("safe go panic")
	})
	wg.Wait()
}
