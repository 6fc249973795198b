package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMapping = `
types:
  バグ: Bug
  機能: User Story
statuses:
  Bug:
    新規: New
    進行中: Active
default_statuses:
  終了: Closed
priorities:
  急いで: 1
  通常: 2
default_priority: 3
relations:
  duplicates: System.LinkTypes.Duplicate-Forward
custom_fields:
  環境: Custom.Environment
options:
  migrate_comments: true
  migrate_attachments: true
  migrate_relations: true
  migrate_hierarchy: true
  id_banner: true
`

func writeMapping(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMapping(t *testing.T) {
	mapping, err := LoadMapping(writeMapping(t, sampleMapping))
	require.NoError(t, err)

	assert.Equal(t, "Bug", mapping.Types["バグ"])
	assert.Equal(t, "Active", mapping.Statuses["Bug"]["進行中"])
	assert.Equal(t, "Closed", mapping.DefaultStatuses["終了"])
	assert.Equal(t, 1, mapping.Priorities["急いで"])
	assert.Equal(t, 3, mapping.DefaultPriority)
	assert.Equal(t, "System.LinkTypes.Duplicate-Forward", mapping.Relations["duplicates"])
	assert.Equal(t, "Custom.Environment", mapping.CustomFields["環境"])

	assert.True(t, mapping.Options.MigrateComments)
	assert.True(t, mapping.Options.IDBanner)
	assert.False(t, mapping.Options.LinkBanner)

	// 省略された項目にはデフォルトが適用される
	assert.Equal(t, "Issue", mapping.DefaultType)
	assert.Equal(t, "Custom.DoneRatio", mapping.DoneRatioField)
}

func TestLoadMappingEmptyFile(t *testing.T) {
	mapping, err := LoadMapping(writeMapping(t, ""))
	require.NoError(t, err)

	// 空のYAMLでもテーブルはnilにならない
	assert.NotNil(t, mapping.Types)
	assert.NotNil(t, mapping.Statuses)
	assert.NotNil(t, mapping.Relations)
	assert.Equal(t, "Issue", mapping.DefaultType)
}

func TestLoadMappingMissingFile(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "なし.yml"))
	assert.Error(t, err)
}

func TestLoadMappingInvalidYAML(t *testing.T) {
	_, err := LoadMapping(writeMapping(t, "types: [壊れた"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("REDMINE_URL", "https://redmine.example.com/")
	t.Setenv("REDMINE_API_KEY", "key")
	t.Setenv("AZURE_ORG_URL", "https://dev.azure.com/example/")
	t.Setenv("AZURE_PROJECT", "Migrated")
	t.Setenv("AZURE_PAT", "pat")
	t.Setenv("MAPPING_YAML", writeMapping(t, sampleMapping))
	t.Setenv("MAX_CONCURRENT", "8")
	t.Setenv("API_DELAY_MS", "250")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// 末尾のスラッシュは取り除かれる
	assert.Equal(t, "https://redmine.example.com", cfg.RedmineURL)
	assert.Equal(t, "https://dev.azure.com/example", cfg.AzureOrgURL)

	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.Equal(t, 250, cfg.APIDelayMS)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, "id_mapping.json", cfg.MappingFile)

	require.NotNil(t, cfg.Mapping)
	assert.Equal(t, "Bug", cfg.Mapping.Types["バグ"])
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	t.Setenv("REDMINE_URL", "")
	t.Setenv("REDMINE_API_KEY", "")
	t.Setenv("AZURE_ORG_URL", "")
	t.Setenv("AZURE_PROJECT", "")
	t.Setenv("AZURE_PAT", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
