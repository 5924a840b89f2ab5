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

package pool

import (
	"fmt"
	"sync"
)

// DoFunc runs fn over slices on a temporary WorkerPool and waits for all of them.
// poolSize is clamped to [1, len(slices)].
func DoFunc[T any](poolSize int, fn func(T), slices ...T) error {
	if fn == nil {
		return fmt.Errorf("nil func error")
	}
	if len(slices) == 0 {
		return nil
	}

	if poolSize <= 0 || poolSize > len(slices) {
		poolSize = len(slices)
	}
	p, err := New(poolSize, WithName("doFunc"))
	if err != nil {
		return err
	}
	defer p.Shutdown()

	waitGroup := sync.WaitGroup{}
	for _, v := range slices {
		v := v
		waitGroup.Add(1)
		if err = p.Execute(func() {
			defer waitGroup.Done()
			fn(v)
		}); err != nil {
			waitGroup.Done()
			return err
		}
	}

	waitGroup.Wait()
	return nil
}
