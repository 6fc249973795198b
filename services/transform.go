package services

import (
	"fmt"
	"strings"

	"redminetoado/config"
	"redminetoado/models"
)

// Azure DevOpsの標準フィールド参照名
const (
	FieldTitle            = "System.Title"
	FieldDescription      = "System.Description"
	FieldState            = "System.State"
	FieldAssignedTo       = "System.AssignedTo"
	FieldPriority         = "Microsoft.VSTS.Common.Priority"
	FieldStartDate        = "Microsoft.VSTS.Scheduling.StartDate"
	FieldTargetDate       = "Microsoft.VSTS.Scheduling.TargetDate"
	FieldOriginalEstimate = "Microsoft.VSTS.Scheduling.OriginalEstimate"
)

// マッピングテーブルにも該当がない場合の最終フォールバック
const (
	FallbackState    = "New"
	FallbackPriority = 2
)

// リンクタイプ参照名
const (
	HierarchyLinkType = "System.LinkTypes.Hierarchy-Reverse"
	DefaultLinkType   = "System.LinkTypes.Related"
)

// FieldMapper はRedmineイシューをAzure DevOpsのフィールドマップに変換します
// 変換は決定的で、副作用もI/Oもありません
type FieldMapper struct {
	config *config.Config
}

// NewFieldMapper は新しいフィールドマッパーを作成します
func NewFieldMapper(cfg *config.Config) *FieldMapper {
	return &FieldMapper{config: cfg}
}

// Transform はイシューを（作業項目タイプ, フィールドマップ）に変換します
// 値が存在しないソースフィールドは出力に含めません
func (f *FieldMapper) Transform(issue *models.RedmineIssue) (string, models.WorkItemFields) {
	m := f.config.Mapping
	targetType := f.MapType(issue.Tracker.Name)

	fields := models.WorkItemFields{}

	if issue.Subject != "" {
		fields[FieldTitle] = issue.Subject
	}
	if description := f.composeDescription(issue); description != "" {
		fields[FieldDescription] = description
	}

	fields[FieldState] = f.MapStatus(targetType, issue.Status.Name)
	fields[FieldPriority] = f.MapPriority(issue.Priority.Name)

	if issue.AssignedTo != nil && issue.AssignedTo.Name != "" {
		fields[FieldAssignedTo] = issue.AssignedTo.Name
	}
	if issue.StartDate != "" {
		fields[FieldStartDate] = issue.StartDate
	}
	if issue.DueDate != "" {
		fields[FieldTargetDate] = issue.DueDate
	}
	if issue.EstimatedHours > 0 {
		fields[FieldOriginalEstimate] = issue.EstimatedHours
	}
	if issue.DoneRatio > 0 {
		fields[m.DoneRatioField] = issue.DoneRatio
	}

	// カスタムフィールドはソースの並び順で処理します
	// マッピング未定義または値が空のフィールドは出力しません
	for _, cf := range issue.CustomFields {
		target, ok := m.CustomFields[cf.Name]
		if !ok {
			continue
		}
		value := customFieldValue(cf.Value)
		if value == "" {
			continue
		}
		fields[target] = value
	}

	return targetType, fields
}

// MapType はトラッカー名を作業項目タイプに変換します
func (f *FieldMapper) MapType(tracker string) string {
	if target, ok := f.config.Mapping.Types[tracker]; ok {
		return target
	}
	return f.config.Mapping.DefaultType
}

// MapStatus はステータス名を作業項目の状態に変換します
// 解決順序: タイプ別テーブル → デフォルトテーブル → 組み込みフォールバック
func (f *FieldMapper) MapStatus(targetType, status string) string {
	m := f.config.Mapping
	if table, ok := m.Statuses[targetType]; ok {
		if state, ok := table[status]; ok {
			return state
		}
	}
	if state, ok := m.DefaultStatuses[status]; ok {
		return state
	}
	return FallbackState
}

// MapPriority は優先度名を数値優先度に変換します
func (f *FieldMapper) MapPriority(priority string) int {
	m := f.config.Mapping
	if value, ok := m.Priorities[priority]; ok {
		return value
	}
	if m.DefaultPriority > 0 {
		return m.DefaultPriority
	}
	return FallbackPriority
}

// MapRelationKind はRedmineの関連タイプをリンクタイプ参照名に変換します
// 未定義の関連タイプは汎用の "Related" リンクになります
func (f *FieldMapper) MapRelationKind(kind string) string {
	if linkType, ok := f.config.Mapping.Relations[kind]; ok {
		return linkType
	}
	return DefaultLinkType
}

// composeDescription は出所バナー付きの説明文を組み立てます
// 順序は固定: IDバナー → リンクバナー → 区切り → 元の本文
func (f *FieldMapper) composeDescription(issue *models.RedmineIssue) string {
	options := f.config.Mapping.Options

	var b strings.Builder
	if options.IDBanner {
		fmt.Fprintf(&b, "[Redmine #%d]\n", issue.ID)
	}
	if options.LinkBanner {
		fmt.Fprintf(&b, "%s/issues/%d\n", f.config.RedmineURL, issue.ID)
	}
	if b.Len() > 0 {
		b.WriteString("\n---\n\n")
	}
	b.WriteString(issue.Description)

	return b.String()
}

// customFieldValue はカスタムフィールドの値を文字列に正規化します
// 複数値フィールドはカンマ区切りで結合します
func customFieldValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := customFieldValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
