package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"redminetoado/config"
	"redminetoado/models"
	"redminetoado/utils"
)

// SourceReader は移行元（Redmine）からの読み取り契約です
type SourceReader interface {
	ListIssues(ctx context.Context, project string) ([]models.RedmineIssue, error)
	GetIssue(ctx context.Context, id int) (*models.RedmineIssue, error)
	DownloadAttachment(ctx context.Context, contentURL string) ([]byte, error)
}

// TargetWriter は移行先（Azure DevOps）への書き込み契約です
type TargetWriter interface {
	CreateWorkItem(ctx context.Context, workItemType string, fields models.WorkItemFields) (int, error)
	AddComment(ctx context.Context, workItemID int, text string) error
	UploadAttachment(ctx context.Context, data []byte, filename string) (string, error)
	LinkAttachment(ctx context.Context, workItemID int, attachmentURL, filename string) error
	CreateLink(ctx context.Context, fromID, toID int, linkType, comment string) error
}

// Phase は移行パイプラインの状態を表します
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseCreating
	PhaseExtras
	PhaseRelations
	PhasePersisting
	PhaseDone
	PhaseFailed
)

// String はフェーズ名を返します
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching-source"
	case PhaseCreating:
		return "creating-nodes"
	case PhaseExtras:
		return "migrating-extras"
	case PhaseRelations:
		return "resolving-relations"
	case PhasePersisting:
		return "persisting"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunStats は1回の移行実行の集計カウンターです
type RunStats struct {
	IssuesTotal         int
	IssuesCreated       int
	IssuesSkipped       int
	IssuesFailed        int
	CommentsCreated     int
	CommentsFailed      int
	AttachmentsUploaded int
	AttachmentsFailed   int
	LinksCreated        int
	LinksSkipped        int
	LinksFailed         int
}

// MigrationService はRedmineからAzure DevOpsへの移行パイプライン全体を駆動します
//
// パイプラインはフェーズ単位で厳密に順序付けられます:
// 取得 → ノード作成 → コメント・添付 → 関連解決 → 対応表の永続化
// 関連解決は対応表が完成してからでないと正しく動かないため、
// フェーズ境界は並行化しても越えてはいけません
type MigrationService struct {
	config *config.Config
	reader SourceReader
	writer TargetWriter
	mapper *FieldMapper
	idMap  *IdentityMap

	phase   Phase
	statsMu sync.Mutex
	stats   RunStats
}

// NewMigrationService は新しい移行サービスを作成します
func NewMigrationService(cfg *config.Config, reader SourceReader, writer TargetWriter) *MigrationService {
	return &MigrationService{
		config: cfg,
		reader: reader,
		writer: writer,
		mapper: NewFieldMapper(cfg),
		idMap:  NewIdentityMap(),
		phase:  PhaseIdle,
	}
}

// Phase は現在のフェーズを返します
func (m *MigrationService) Phase() Phase {
	return m.phase
}

// Stats は集計カウンターのコピーを返します
func (m *MigrationService) Stats() RunStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// IdentityMap は対応表を返します
func (m *MigrationService) IdentityMap() *IdentityMap {
	return m.idMap
}

// Run は移行処理全体を実行します
// issuesOnly: 関連リンクの作成をスキップ
// attachmentsOnly: 既存の対応表を使い添付ファイルのみ移行
// relationsOnly: 既存の対応表を使い関連リンクのみ作成
func (m *MigrationService) Run(ctx context.Context, issuesOnly, attachmentsOnly, relationsOnly bool) error {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "移行処理全体")

	// 再実行モードでは既存の対応表が前提になります
	resumePath := ""
	if attachmentsOnly || relationsOnly {
		resumePath = m.config.MappingFile
	} else if m.config.ResumeMapping != "" {
		resumePath = m.config.ResumeMapping
	}
	if resumePath != "" {
		loaded, err := LoadIdentityMap(resumePath)
		if err != nil {
			return m.fail(errors.Wrap(err, "対応表の読み込みに失敗しました"))
		}
		m.idMap = loaded
		utils.LogInfo("既存の対応表を読み込みました: %d 件 (%s)", loaded.Len(), resumePath)
	}

	// フェーズ1: ソースイシューの取得
	m.phase = PhaseFetching
	issues, err := m.FetchAllIssues(ctx)
	if err != nil {
		return m.fail(errors.Wrap(err, "ソースイシューの取得に失敗しました"))
	}

	// フェーズ2: ノード作成（厳密に逐次）
	if !attachmentsOnly && !relationsOnly {
		m.phase = PhaseCreating
		if err := m.CreateWorkItems(ctx, issues); err != nil {
			return m.fail(err)
		}
	}

	// フェーズ3: コメント・添付ファイルの移行
	if !relationsOnly {
		m.phase = PhaseExtras
		if err := m.MigrateExtras(ctx, issues, attachmentsOnly); err != nil {
			return m.fail(err)
		}
	}

	// フェーズ4: 関連の解決とリンク作成
	// 対応表が完成した後でなければ開始できません
	if !issuesOnly && !attachmentsOnly {
		m.phase = PhaseRelations
		if err := m.ResolveRelations(ctx, issues); err != nil {
			return m.fail(err)
		}
	}

	// フェーズ5: 対応表と結果レポートの永続化
	if !attachmentsOnly && !relationsOnly {
		m.phase = PhasePersisting
		if err := m.idMap.SaveToFile(m.config.MappingFile); err != nil {
			return m.fail(errors.Wrap(err, "対応表の永続化に失敗しました"))
		}
		utils.LogInfo("対応表を書き出しました: %s (%d 件)", m.config.MappingFile, m.idMap.Len())

		if err := m.WriteResultCSV(issues); err != nil {
			utils.LogWarn("結果レポートの書き込みに失敗しました: %v", err)
		}
	}

	m.phase = PhaseDone
	m.logSummary()
	return nil
}

// fail は実行を失敗状態にしてエラーを返します
func (m *MigrationService) fail(err error) error {
	phase := m.phase
	m.phase = PhaseFailed
	return errors.Wrapf(err, "フェーズ %s で致命的なエラー", phase)
}

// FetchAllIssues は対象イシューの一覧と詳細（ジャーナル・添付・関連）を取得します
// 一覧の取得失敗は致命的、個別の詳細取得失敗はそのイシューのスキップになります
func (m *MigrationService) FetchAllIssues(ctx context.Context) ([]models.RedmineIssue, error) {
	summaries, err := m.reader.ListIssues(ctx, m.config.RedmineProject)
	if err != nil {
		return nil, err
	}
	utils.LogInfo("移行対象イシュー: %d 件", len(summaries))

	// 詳細取得はイシュー間で独立しているため、上限付きで並列化します
	// 結果はインデックスで書き込み、入力順を保ちます
	details := make([]*models.RedmineIssue, len(summaries))
	semaphore := make(chan struct{}, m.maxConcurrent())
	var wg sync.WaitGroup

	for i, summary := range summaries {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(idx, id int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			detail, err := m.reader.GetIssue(ctx, id)
			if err != nil {
				utils.LogError("イシュー #%d の詳細取得に失敗: %v", id, err)
				return
			}
			if detail == nil {
				utils.LogWarn("イシュー #%d が見つかりません（スキップ）", id)
				return
			}
			details[idx] = detail
		}(i, summary.ID)
	}

	wg.Wait()
	close(semaphore)

	issues := make([]models.RedmineIssue, 0, len(details))
	for _, detail := range details {
		if detail != nil {
			issues = append(issues, *detail)
		}
	}

	utils.LogInfo("イシュー詳細を取得しました: %d/%d 件", len(issues), len(summaries))
	return issues, nil
}

// CreateWorkItems は各イシューを変換して作業項目を作成します（フェーズ2）
// 対応表への書き込み順を保つため、このループは逐次実行です
// 個別の作成失敗はログとカウントのみで処理を続行します
func (m *MigrationService) CreateWorkItems(ctx context.Context, issues []models.RedmineIssue) error {
	m.stats.IssuesTotal = len(issues)

	for i := range issues {
		issue := &issues[i]

		// 再開時: 既に移行済みのイシューはスキップ
		if _, ok := m.idMap.Get(issue.ID); ok {
			utils.LogInfo("イシュー #%d は移行済みのためスキップします", issue.ID)
			m.stats.IssuesSkipped++
			continue
		}

		workItemType, fields := m.mapper.Transform(issue)

		workItemID, err := m.writer.CreateWorkItem(ctx, workItemType, fields)
		if err != nil {
			utils.LogError("イシュー #%d の作成に失敗: %v", issue.ID, err)
			m.stats.IssuesFailed++
			continue
		}

		// 二重登録は正常フローでは起こり得ないため、起きたら実行を止めます
		if err := m.idMap.Put(issue.ID, workItemID); err != nil {
			return errors.Wrap(err, "対応表の不変条件違反")
		}

		m.stats.IssuesCreated++
		utils.LogInfo("イシュー #%d → 作業項目 %d (%s) [%d/%d]",
			issue.ID, workItemID, workItemType, i+1, len(issues))
	}

	utils.LogInfo("ノード作成フェーズ完了: 成功=%d, スキップ=%d, 失敗=%d",
		m.stats.IssuesCreated, m.stats.IssuesSkipped, m.stats.IssuesFailed)
	return nil
}

// MigrateExtras は作成済みノードのコメントと添付ファイルを移行します（フェーズ3）
// イシュー間では上限付きで並列化します。イシュー内のコメントは時系列順を
// 保つため逐次です
func (m *MigrationService) MigrateExtras(ctx context.Context, issues []models.RedmineIssue, attachmentsOnly bool) error {
	options := m.config.Mapping.Options
	migrateComments := options.MigrateComments && !attachmentsOnly
	migrateAttachments := options.MigrateAttachments

	if !migrateComments && !migrateAttachments {
		utils.LogInfo("コメント・添付ファイルの移行は無効です")
		return nil
	}

	semaphore := make(chan struct{}, m.maxConcurrent())
	var wg sync.WaitGroup

	for i := range issues {
		issue := &issues[i]

		// 作成に失敗したノードの付随データは移行しません
		workItemID, ok := m.idMap.Get(issue.ID)
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(issue *models.RedmineIssue, workItemID int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if migrateComments {
				m.migrateComments(ctx, issue, workItemID)
			}
			if migrateAttachments {
				m.migrateAttachments(ctx, issue, workItemID)
			}
		}(issue, workItemID)
	}

	wg.Wait()
	close(semaphore)

	stats := m.Stats()
	utils.LogInfo("コメント・添付フェーズ完了: コメント成功=%d 失敗=%d, 添付成功=%d 失敗=%d",
		stats.CommentsCreated, stats.CommentsFailed,
		stats.AttachmentsUploaded, stats.AttachmentsFailed)
	return nil
}

// migrateComments はイシューのジャーナルを時系列順にコメントとして追記します
func (m *MigrationService) migrateComments(ctx context.Context, issue *models.RedmineIssue, workItemID int) {
	for _, journal := range issue.Journals {
		text := formatJournal(journal)
		if text == "" {
			continue
		}

		err := m.writer.AddComment(ctx, workItemID, text)

		m.statsMu.Lock()
		if err != nil {
			m.stats.CommentsFailed++
		} else {
			m.stats.CommentsCreated++
		}
		m.statsMu.Unlock()

		if err != nil {
			utils.LogError("イシュー #%d のコメント移行に失敗: %v", issue.ID, err)
		}
	}
}

// migrateAttachments はイシューの添付ファイルをダウンロード・アップロード・
// 関連付けします。1ファイルの失敗はそのファイルのスキップで済ませます
func (m *MigrationService) migrateAttachments(ctx context.Context, issue *models.RedmineIssue, workItemID int) {
	for _, attachment := range issue.Attachments {
		if err := m.migrateAttachment(ctx, workItemID, attachment); err != nil {
			utils.LogError("イシュー #%d の添付 %s に失敗: %v", issue.ID, attachment.Filename, err)
			m.statsMu.Lock()
			m.stats.AttachmentsFailed++
			m.statsMu.Unlock()
			continue
		}

		m.statsMu.Lock()
		m.stats.AttachmentsUploaded++
		m.statsMu.Unlock()
		utils.LogInfo("添付 %s を作業項目 %d に移行しました", attachment.Filename, workItemID)
	}
}

// migrateAttachment は1件の添付ファイルを移行します
func (m *MigrationService) migrateAttachment(ctx context.Context, workItemID int, attachment models.Attachment) error {
	data, err := m.reader.DownloadAttachment(ctx, attachment.ContentURL)
	if err != nil {
		return errors.Wrap(err, "ダウンロードエラー")
	}
	if len(data) == 0 {
		return errors.New("添付ファイルが空です")
	}

	attachmentURL, err := m.writer.UploadAttachment(ctx, data, attachment.Filename)
	if err != nil {
		return errors.Wrap(err, "アップロードエラー")
	}

	if err := m.writer.LinkAttachment(ctx, workItemID, attachmentURL, attachment.Filename); err != nil {
		return errors.Wrap(err, "関連付けエラー")
	}
	return nil
}

// ResolveRelations は親子関係と型付き関連を対応表で解決してリンクを作成します
// （フェーズ4）。全ノードの作成が試行された後でのみ呼び出せます
// 対応表にないターゲットへの関連はスキップ（移行範囲外）であり、エラーでは
// ありません
func (m *MigrationService) ResolveRelations(ctx context.Context, issues []models.RedmineIssue) error {
	options := m.config.Mapping.Options
	if !options.MigrateHierarchy && !options.MigrateRelations {
		utils.LogInfo("関連リンクの移行は無効です")
		return nil
	}

	// Redmineは関連を両端のイシューに載せて返すため、関連IDで重複を除きます
	seen := make(map[int]bool)

	for i := range issues {
		issue := &issues[i]

		workItemID, ok := m.idMap.Get(issue.ID)
		if !ok {
			// ノード作成に失敗したイシューのリンクは作成できません
			continue
		}

		if options.MigrateHierarchy && issue.Parent != nil {
			m.createParentLink(ctx, issue, workItemID)
		}

		if options.MigrateRelations {
			for _, relation := range issue.Relations {
				if relation.ID != 0 {
					if seen[relation.ID] {
						continue
					}
					seen[relation.ID] = true
				}
				m.createRelationLink(ctx, issue, workItemID, relation)
			}
		}
	}

	utils.LogInfo("関連解決フェーズ完了: 成功=%d, スキップ=%d, 失敗=%d",
		m.stats.LinksCreated, m.stats.LinksSkipped, m.stats.LinksFailed)
	return nil
}

// createParentLink は親子関係の階層リンクを作成します
func (m *MigrationService) createParentLink(ctx context.Context, issue *models.RedmineIssue, workItemID int) {
	parentTarget, ok := m.idMap.Get(issue.Parent.ID)
	if !ok {
		utils.LogWarn("イシュー #%d の親 #%d は移行されていません（リンクをスキップ）",
			issue.ID, issue.Parent.ID)
		m.stats.LinksSkipped++
		return
	}
	if parentTarget == workItemID {
		utils.LogWarn("イシュー #%d: 自己参照の階層リンクをスキップします", issue.ID)
		m.stats.LinksSkipped++
		return
	}

	if err := m.writer.CreateLink(ctx, workItemID, parentTarget, HierarchyLinkType, ""); err != nil {
		utils.LogError("イシュー #%d の階層リンク作成に失敗: %v", issue.ID, err)
		m.stats.LinksFailed++
		return
	}
	m.stats.LinksCreated++
}

// createRelationLink は型付き関連のリンクを作成します
// 関連は from/to どちらの側から見ても、自分でない方の端点を解決します
func (m *MigrationService) createRelationLink(ctx context.Context, issue *models.RedmineIssue, workItemID int, relation models.Relation) {
	otherID := relation.IssueToID
	if otherID == issue.ID {
		otherID = relation.IssueID
	}
	if otherID == issue.ID {
		utils.LogWarn("イシュー #%d: 自己参照の関連をスキップします", issue.ID)
		m.stats.LinksSkipped++
		return
	}

	otherTarget, ok := m.idMap.Get(otherID)
	if !ok {
		utils.LogWarn("イシュー #%d の関連先 #%d は移行範囲外です（リンクをスキップ）",
			issue.ID, otherID)
		m.stats.LinksSkipped++
		return
	}
	if otherTarget == workItemID {
		utils.LogWarn("イシュー #%d: 自己参照リンクをスキップします", issue.ID)
		m.stats.LinksSkipped++
		return
	}

	linkType := m.mapper.MapRelationKind(relation.RelationType)
	comment := fmt.Sprintf("Redmine relation: %s", relation.RelationType)

	if err := m.writer.CreateLink(ctx, workItemID, otherTarget, linkType, comment); err != nil {
		utils.LogError("イシュー #%d → #%d のリンク作成に失敗: %v", issue.ID, otherID, err)
		m.stats.LinksFailed++
		return
	}
	m.stats.LinksCreated++
}

// formatJournal はジャーナル1件を人間が読めるコメント文に整形します
// ノートもフィールド変更もない場合は空文字列を返します
func formatJournal(journal models.Journal) string {
	if journal.Notes == "" && len(journal.Details) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)", journal.User.Name, journal.CreatedOn.Format("2006-01-02 15:04"))

	for _, detail := range journal.Details {
		fmt.Fprintf(&b, "\n- %s: %s → %s", detail.Name, detail.OldValue, detail.NewValue)
	}

	if journal.Notes != "" {
		b.WriteString("\n\n")
		b.WriteString(journal.Notes)
	}

	return b.String()
}

// maxConcurrent は並列処理の上限を返します
func (m *MigrationService) maxConcurrent() int {
	if m.config.MaxConcurrent > 0 {
		return m.config.MaxConcurrent
	}
	return 1
}

// logSummary は実行結果のサマリーを出力します
func (m *MigrationService) logSummary() {
	stats := m.Stats()
	utils.LogInfo("===== 移行結果 =====")
	utils.LogInfo("イシュー: 対象=%d, 作成=%d, スキップ=%d, 失敗=%d",
		stats.IssuesTotal, stats.IssuesCreated, stats.IssuesSkipped, stats.IssuesFailed)
	utils.LogInfo("コメント: 作成=%d, 失敗=%d", stats.CommentsCreated, stats.CommentsFailed)
	utils.LogInfo("添付ファイル: 作成=%d, 失敗=%d", stats.AttachmentsUploaded, stats.AttachmentsFailed)
	utils.LogInfo("リンク: 作成=%d, スキップ=%d, 失敗=%d",
		stats.LinksCreated, stats.LinksSkipped, stats.LinksFailed)
}
