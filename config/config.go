package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Redmine API設定
	RedmineURL    string
	RedmineAPIKey string
	RedmineProject string // 移行対象プロジェクト（空の場合は全イシュー）

	// Azure DevOps API設定
	AzureOrgURL  string
	AzureProject string
	AzurePAT     string

	// ファイルパス
	MappingYAML   string // マッピングテーブル定義（YAML）
	MappingFile   string // 移行結果のID対応表（JSON）
	ResultCSV     string // 移行結果レポート（CSV）
	ResumeMapping string // 再開時に読み込む既存のID対応表（任意）

	// 並列処理・ペーシング設定
	MaxConcurrent int
	PageSize      int
	APIDelayMS    int

	// マッピングテーブル
	Mapping *Mapping
}

// Options は移行処理の有効・無効を切り替えるトグルです
type Options struct {
	MigrateComments    bool `yaml:"migrate_comments"`
	MigrateAttachments bool `yaml:"migrate_attachments"`
	MigrateRelations   bool `yaml:"migrate_relations"`
	MigrateHierarchy   bool `yaml:"migrate_hierarchy"`
	IDBanner           bool `yaml:"id_banner"`
	LinkBanner         bool `yaml:"link_banner"`
}

// Mapping はRedmineからAzure DevOpsへの変換テーブルを保持します
type Mapping struct {
	// トラッカー名 → 作業項目タイプ
	Types       map[string]string `yaml:"types"`
	DefaultType string            `yaml:"default_type"`

	// 作業項目タイプ別のステータステーブルと、タイプ非依存のデフォルトテーブル
	Statuses        map[string]map[string]string `yaml:"statuses"`
	DefaultStatuses map[string]string            `yaml:"default_statuses"`

	// 優先度名 → 数値優先度
	Priorities      map[string]int `yaml:"priorities"`
	DefaultPriority int            `yaml:"default_priority"`

	// Redmineの関連タイプ → Azure DevOpsのリンクタイプ参照名
	Relations map[string]string `yaml:"relations"`

	// カスタムフィールド名 → フィールド参照名
	CustomFields map[string]string `yaml:"custom_fields"`

	// 進捗率の書き込み先フィールド
	DoneRatioField string `yaml:"done_ratio_field"`

	Options Options `yaml:"options"`
}

// LoadConfig は環境変数とYAMLファイルから設定を読み込みます
// 必須の認証情報が欠けている場合はエラーを返します
func LoadConfig() (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	config := &Config{
		RedmineURL:     strings.TrimRight(os.Getenv("REDMINE_URL"), "/"),
		RedmineAPIKey:  os.Getenv("REDMINE_API_KEY"),
		RedmineProject: os.Getenv("REDMINE_PROJECT"),
		AzureOrgURL:    strings.TrimRight(os.Getenv("AZURE_ORG_URL"), "/"),
		AzureProject:   os.Getenv("AZURE_PROJECT"),
		AzurePAT:       os.Getenv("AZURE_PAT"),
		MappingYAML:    getEnvWithDefault("MAPPING_YAML", "mapping.yml"),
		MappingFile:    getEnvWithDefault("MAPPING_FILE", "id_mapping.json"),
		ResultCSV:      getEnvWithDefault("RESULT_CSV", "migration_result.csv"),
		ResumeMapping:  os.Getenv("RESUME_MAPPING"),
		MaxConcurrent:  getEnvAsIntWithDefault("MAX_CONCURRENT", 5),
		PageSize:       getEnvAsIntWithDefault("PAGE_SIZE", 100),
		APIDelayMS:     getEnvAsIntWithDefault("API_DELAY_MS", 500),
	}

	if config.RedmineURL == "" || config.RedmineAPIKey == "" {
		return nil, errors.New("REDMINE_URL と REDMINE_API_KEY は必須です")
	}
	if config.AzureOrgURL == "" || config.AzureProject == "" || config.AzurePAT == "" {
		return nil, errors.New("AZURE_ORG_URL, AZURE_PROJECT, AZURE_PAT は必須です")
	}

	mapping, err := LoadMapping(config.MappingYAML)
	if err != nil {
		return nil, errors.Wrapf(err, "マッピングテーブル読み込みエラー: %s", config.MappingYAML)
	}
	config.Mapping = mapping

	return config, nil
}

// LoadMapping はYAMLファイルからマッピングテーブルを読み込みます
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "YAMLオープンエラー")
	}

	var mapping Mapping
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, errors.Wrap(err, "YAML解析エラー")
	}

	applyDefaults(&mapping)
	return &mapping, nil
}

// applyDefaults は省略されたマッピング項目にデフォルト値を適用します
func applyDefaults(m *Mapping) {
	if m.DefaultType == "" {
		m.DefaultType = "Issue"
	}
	if m.DoneRatioField == "" {
		m.DoneRatioField = "Custom.DoneRatio"
	}
	if m.Types == nil {
		m.Types = map[string]string{}
	}
	if m.Statuses == nil {
		m.Statuses = map[string]map[string]string{}
	}
	if m.DefaultStatuses == nil {
		m.DefaultStatuses = map[string]string{}
	}
	if m.Priorities == nil {
		m.Priorities = map[string]int{}
	}
	if m.Relations == nil {
		m.Relations = map[string]string{}
	}
	if m.CustomFields == nil {
		m.CustomFields = map[string]string{}
	}
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// デフォルト値付きで環境変数を整数として取得
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
