package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redminetoado/config"
	"redminetoado/models"
)

func transformConfig() *config.Config {
	return &config.Config{
		RedmineURL: "https://redmine.example.com",
		Mapping: &config.Mapping{
			Types:       map[string]string{"Bug": "Issue", "Feature": "User Story"},
			DefaultType: "Task",
			Statuses: map[string]map[string]string{
				"Issue": {"進行中": "Active"},
			},
			DefaultStatuses: map[string]string{"終了": "Closed"},
			Priorities:      map[string]int{"急いで": 1},
			DefaultPriority: 0,
			Relations:       map[string]string{"duplicates": "System.LinkTypes.Duplicate-Forward"},
			CustomFields:    map[string]string{"環境": "Custom.Environment"},
			DoneRatioField:  "Custom.DoneRatio",
			Options: config.Options{
				IDBanner:   true,
				LinkBanner: true,
			},
		},
	}
}

func sampleIssue() *models.RedmineIssue {
	return &models.RedmineIssue{
		ID:          1,
		Tracker:     models.NamedRef{ID: 1, Name: "Bug"},
		Status:      models.NamedRef{ID: 1, Name: "進行中"},
		Priority:    models.NamedRef{ID: 2, Name: "通常"},
		Subject:     "Crash on save",
		Description: "保存時にクラッシュする",
		CreatedOn:   time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestTransformBasic(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())

	targetType, fields := mapper.Transform(sampleIssue())

	assert.Equal(t, "Issue", targetType)
	assert.Equal(t, "Crash on save", fields[FieldTitle])
	assert.Equal(t, "Active", fields[FieldState])
	assert.Equal(t, FallbackPriority, fields[FieldPriority])
}

func TestTransformIsDeterministic(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())
	issue := sampleIssue()

	type1, fields1 := mapper.Transform(issue)
	type2, fields2 := mapper.Transform(issue)

	assert.Equal(t, type1, type2)
	assert.Equal(t, fields1, fields2)
}

func TestTransformOmitsAbsentFields(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())

	issue := sampleIssue()
	issue.DueDate = ""
	issue.StartDate = ""
	issue.AssignedTo = nil
	issue.EstimatedHours = 0
	issue.DoneRatio = 0

	_, fields := mapper.Transform(issue)

	assert.NotContains(t, fields, FieldTargetDate)
	assert.NotContains(t, fields, FieldStartDate)
	assert.NotContains(t, fields, FieldAssignedTo)
	assert.NotContains(t, fields, FieldOriginalEstimate)
	assert.NotContains(t, fields, "Custom.DoneRatio")
}

func TestTransformCopiesPresentScalars(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())

	issue := sampleIssue()
	issue.DueDate = "2024-05-01"
	issue.StartDate = "2024-04-01"
	issue.AssignedTo = &models.NamedRef{ID: 5, Name: "山田 千尋"}
	issue.EstimatedHours = 8
	issue.DoneRatio = 40

	_, fields := mapper.Transform(issue)

	assert.Equal(t, "2024-05-01", fields[FieldTargetDate])
	assert.Equal(t, "2024-04-01", fields[FieldStartDate])
	assert.Equal(t, "山田 千尋", fields[FieldAssignedTo])
	assert.Equal(t, float64(8), fields[FieldOriginalEstimate])
	assert.Equal(t, 40, fields["Custom.DoneRatio"])
}

func TestTransformCustomFields(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())

	issue := sampleIssue()
	issue.CustomFields = []models.CustomField{
		{ID: 1, Name: "環境", Value: "production"},
		{ID: 2, Name: "未定義フィールド", Value: "dropped"},
		{ID: 3, Name: "環境", Value: ""},
	}

	_, fields := mapper.Transform(issue)

	assert.Equal(t, "production", fields["Custom.Environment"])
	for name := range fields {
		assert.NotEqual(t, "dropped", fields[name])
	}
}

func TestCustomFieldMultiValue(t *testing.T) {
	assert.Equal(t, "a, b", customFieldValue([]interface{}{"a", "", "b"}))
	assert.Equal(t, "", customFieldValue(nil))
	assert.Equal(t, "42", customFieldValue(42))
}

func TestMapTypeDefault(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())

	assert.Equal(t, "Issue", mapper.MapType("Bug"))
	assert.Equal(t, "Task", mapper.MapType("未知のトラッカー"))
}

func TestMapStatusFallbackOrder(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())

	tests := []struct {
		name       string
		targetType string
		status     string
		want       string
	}{
		{"タイプ別テーブルに一致", "Issue", "進行中", "Active"},
		{"デフォルトテーブルに一致", "Issue", "終了", "Closed"},
		{"タイプ未登録でもデフォルトテーブルに一致", "Task", "終了", "Closed"},
		{"どちらにもない場合は組み込みフォールバック", "Issue", "未知", FallbackState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapper.MapStatus(tt.targetType, tt.status))
		})
	}
}

func TestMapPriorityFallbackOrder(t *testing.T) {
	cfg := transformConfig()
	mapper := NewFieldMapper(cfg)

	assert.Equal(t, 1, mapper.MapPriority("急いで"))
	assert.Equal(t, FallbackPriority, mapper.MapPriority("未知"))

	// 設定されたデフォルトが組み込みフォールバックより優先される
	cfg.Mapping.DefaultPriority = 3
	assert.Equal(t, 3, mapper.MapPriority("未知"))
}

func TestMapRelationKindDefault(t *testing.T) {
	mapper := NewFieldMapper(transformConfig())

	assert.Equal(t, "System.LinkTypes.Duplicate-Forward", mapper.MapRelationKind("duplicates"))
	assert.Equal(t, DefaultLinkType, mapper.MapRelationKind("blocks"))
}

func TestComposeDescriptionBannerOrder(t *testing.T) {
	cfg := transformConfig()
	mapper := NewFieldMapper(cfg)
	issue := sampleIssue()

	_, fields := mapper.Transform(issue)
	description, ok := fields[FieldDescription].(string)
	require.True(t, ok)

	// 順序は固定: IDバナー → リンクバナー → 区切り → 本文
	assert.Equal(t,
		"[Redmine #1]\nhttps://redmine.example.com/issues/1\n\n---\n\n保存時にクラッシュする",
		description)
}

func TestComposeDescriptionWithoutBanners(t *testing.T) {
	cfg := transformConfig()
	cfg.Mapping.Options.IDBanner = false
	cfg.Mapping.Options.LinkBanner = false
	mapper := NewFieldMapper(cfg)

	_, fields := mapper.Transform(sampleIssue())

	assert.Equal(t, "保存時にクラッシュする", fields[FieldDescription])
}

func TestComposeDescriptionIDBannerOnly(t *testing.T) {
	cfg := transformConfig()
	cfg.Mapping.Options.LinkBanner = false
	mapper := NewFieldMapper(cfg)

	_, fields := mapper.Transform(sampleIssue())

	assert.Equal(t, "[Redmine #1]\n\n---\n\n保存時にクラッシュする", fields[FieldDescription])
}
