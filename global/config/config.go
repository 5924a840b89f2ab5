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
	"github.com/caiflower/staticd/global/env"
	"github.com/caiflower/staticd/pkg/logger"
	"github.com/caiflower/staticd/pkg/tools"
	serverconfig "github.com/caiflower/staticd/web/server/config"
)

type DefaultConfig struct {
	LoggerConfig logger.Config        `yaml:"logger"`
	ServerConfig serverconfig.Options `yaml:"server"`
}

// LoadDefaultConfig reads $CONFIG_PATH/staticd.yaml. A missing file leaves only defaults.
func LoadDefaultConfig(v *DefaultConfig) (err error) {
	err = LoadConfig(env.ConfigFile(), v)
	return
}

func LoadConfig(filename string, v *DefaultConfig) error {
	return tools.LoadConfig(filename, v)
}
