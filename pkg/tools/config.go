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

package tools

import (
	"errors"
	"os"
	"reflect"
)

// LoadConfig reads a yaml file into v and then fills `default` tags.
// A missing file is not an error, v only gets its defaults.
func LoadConfig(filename string, v interface{}) error {
	if err := UnmarshalFileYaml(filename, v); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	DoTagFunc(v, []func(reflect.StructField, reflect.Value){SetDefaultValueIfNil})
	return nil
}
