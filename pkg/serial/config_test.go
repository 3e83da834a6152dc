// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serial

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-serial/pkg/util/merr"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown strategy", func(c *Config) { c.Strategy = StrategyPlaceholder }},
		{"negative cache", func(c *Config) { c.PlanCacheSize = -1 }},
		{"negative max length", func(c *Config) { c.MaxLength = -1 }},
		{"dump dir without dump", func(c *Config) { c.DumpDir = "/tmp/x" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), merr.ErrParameterInvalid)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  strategy: indirect
  planCacheSize: 16
  maxLength: 4096
`), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyIndirect, cfg.Strategy)
	assert.Equal(t, 16, cfg.PlanCacheSize)
	assert.Equal(t, 4096, cfg.MaxLength)
	assert.True(t, cfg.Verify)

	t.Setenv("GARDEN_SERIAL_VERIFY", "false")
	t.Setenv("GARDEN_SERIAL_STRATEGY", "direct")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Verify)
	assert.Equal(t, StrategyDirect, cfg.Strategy)

	t.Setenv("GARDEN_SERIAL_STRATEGY", "turbo")
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, merr.ErrIoFailed)
}

func TestMaxLength(t *testing.T) {
	writer, err := NewRepository()
	require.NoError(t, err)
	data, err := writer.Marshal(Flat{B: "a string longer than eight"})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxLength = 8
	reader, err := NewRepository(WithConfig(cfg))
	require.NoError(t, err)
	var out Flat
	assert.ErrorIs(t, reader.Unmarshal(data, &out), merr.ErrStreamCorrupted)
}
