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
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/modern-go/reflect2"
)

var durationType = reflect.TypeOf(time.Duration(0))

// DoTagFunc applies fn to every top level field of the struct v points to.
func DoTagFunc(v interface{}, fn []func(reflect.StructField, reflect.Value)) {
	if reflect2.IsNil(v) {
		return
	}

	vType1 := reflect2.TypeOf(v).Type1()
	if vType1.Kind() != reflect.Ptr || vType1.Elem().Kind() != reflect.Struct {
		return
	}

	indirect := reflect.Indirect(reflect.ValueOf(v))
	for i := 0; i < indirect.NumField(); i++ {
		field := indirect.Field(i)
		fieldStruct := vType1.Elem().Field(i)

		for _, f := range fn {
			f(fieldStruct, field)
		}
	}
}

// SetDefaultValueIfNil fills zero valued fields from their `default` tag, recursing into nested structs.
func SetDefaultValueIfNil(structField reflect.StructField, vValue reflect.Value) {
	if !vValue.CanSet() {
		return
	}
	structTag := structField.Tag
	if !containTag(structTag, "default") && vValue.Kind() != reflect.Struct && vValue.Kind() != reflect.Ptr {
		return
	}
	def := structTag.Get("default")

	switch vValue.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if vValue.Int() != 0 || def == "" {
			return
		}
		if vValue.Type() == durationType {
			if d, err := time.ParseDuration(def); err == nil {
				vValue.SetInt(int64(d))
			}
			return
		}
		v, _ := strconv.ParseInt(def, 10, 64)
		vValue.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if vValue.Uint() == 0 && def != "" {
			v, _ := strconv.ParseUint(def, 10, 64)
			vValue.SetUint(v)
		}
	case reflect.String:
		if vValue.String() == "" {
			vValue.SetString(def)
		}
	case reflect.Float32, reflect.Float64:
		if vValue.Float() == 0 && def != "" {
			v, _ := strconv.ParseFloat(def, 64)
			vValue.SetFloat(v)
		}
	case reflect.Struct:
		t := structField.Type
		for i := 0; i < t.NumField(); i++ {
			SetDefaultValueIfNil(t.Field(i), vValue.Field(i))
		}
	case reflect.Ptr:
		// bool 没有可区分的零值，只能通过指针设置默认值
		if vValue.IsNil() {
			if def == "" {
				return
			}
			elem := reflect.New(structField.Type.Elem())
			switch elem.Elem().Kind() {
			case reflect.Bool:
				b, err := strconv.ParseBool(def)
				if err != nil {
					return
				}
				elem.Elem().SetBool(b)
			default:
				SetDefaultValueIfNil(reflect.StructField{Type: structField.Type.Elem(), Tag: structTag}, elem.Elem())
			}
			vValue.Set(elem)
			return
		}
		if vValue.Elem().Kind() == reflect.Struct {
			t := vValue.Elem().Type()
			for i := 0; i < t.NumField(); i++ {
				SetDefaultValueIfNil(t.Field(i), vValue.Elem().Field(i))
			}
		}
	default:
	}
}

func containTag(tag reflect.StructTag, tagName string) bool {
	return regexp.MustCompile(`\b` + tagName + `:`).Match([]byte(tag))
}
