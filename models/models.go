package models

import "time"

// NamedRef はRedmine APIの {id, name} 形式の参照を表します
type NamedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CustomField はRedmineイシューのカスタムフィールドを表します
// 値は文字列または文字列の配列になることがあります
type CustomField struct {
	ID    int         `json:"id"`
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// JournalDetail はジャーナル内の1件のフィールド変更を表します
type JournalDetail struct {
	Property string `json:"property"`
	Name     string `json:"name"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Journal はRedmineイシューの履歴（コメントとフィールド変更）を表します
type Journal struct {
	ID        int             `json:"id"`
	User      NamedRef        `json:"user"`
	Notes     string          `json:"notes"`
	CreatedOn time.Time       `json:"created_on"`
	Details   []JournalDetail `json:"details"`
}

// Attachment はRedmineイシューの添付ファイルを表します
type Attachment struct {
	ID         int    `json:"id"`
	Filename   string `json:"filename"`
	Filesize   int64  `json:"filesize"`
	ContentURL string `json:"content_url"`
}

// Relation はRedmineイシュー間の型付き関連を表します
// 関連は from/to どちらの側からも現在のイシューを参照できます
type Relation struct {
	ID           int    `json:"id"`
	IssueID      int    `json:"issue_id"`
	IssueToID    int    `json:"issue_to_id"`
	RelationType string `json:"relation_type"`
}

// ParentRef は親イシューへの参照を表します
type ParentRef struct {
	ID int `json:"id"`
}

// RedmineIssue は移行対象のRedmineイシュー（ソースレコード）を表します
// 一度取得した後は変更されません
type RedmineIssue struct {
	ID             int           `json:"id"`
	Project        NamedRef      `json:"project"`
	Tracker        NamedRef      `json:"tracker"`
	Status         NamedRef      `json:"status"`
	Priority       NamedRef      `json:"priority"`
	AssignedTo     *NamedRef     `json:"assigned_to,omitempty"`
	Subject        string        `json:"subject"`
	Description    string        `json:"description"`
	StartDate      string        `json:"start_date,omitempty"`
	DueDate        string        `json:"due_date,omitempty"`
	EstimatedHours float64       `json:"estimated_hours,omitempty"`
	DoneRatio      int           `json:"done_ratio"`
	CreatedOn      time.Time     `json:"created_on"`
	UpdatedOn      time.Time     `json:"updated_on"`
	ClosedOn       *time.Time    `json:"closed_on,omitempty"`
	Parent         *ParentRef    `json:"parent,omitempty"`
	CustomFields   []CustomField `json:"custom_fields,omitempty"`
	Journals       []Journal     `json:"journals,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	Relations      []Relation    `json:"relations,omitempty"`
}

// WorkItemFields はAzure DevOps作業項目のフィールドマップを表します
// （フィールド参照名 → 値）
type WorkItemFields map[string]interface{}

// IssueMapping はRedmineイシューIDとAzure DevOps作業項目IDのマッピングを表します
type IssueMapping map[int]int
