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

package v1

import (
	"sync"

	"github.com/modern-go/gls"
)

const (
	RequestID  = "X-Request-ID"
	RemoteAddr = "Remote-Addr"
)

// goroutine id -> *sync.Map
var localMap sync.Map

func getGoID() int64 {
	return gls.GoID()
}

func getMapByGoID(goID int64) *sync.Map {
	value, _ := localMap.Load(goID)
	if value == nil {
		value, _ = localMap.LoadOrStore(goID, &sync.Map{})
	}
	return value.(*sync.Map)
}

func PutTraceID(value string) {
	getMapByGoID(getGoID()).Store(RequestID, value)
}

func GetTraceID() string {
	if v, ok := getMapByGoID(getGoID()).Load(RequestID); ok {
		return v.(string)
	}
	return ""
}

func Put(key string, value interface{}) {
	getMapByGoID(getGoID()).Store(key, value)
}

func Get(key string) interface{} {
	if v, ok := getMapByGoID(getGoID()).Load(key); ok {
		return v
	}
	return nil
}

// Clean must be called before a pooled goroutine picks up unrelated work.
func Clean() {
	localMap.Delete(getGoID())
}
