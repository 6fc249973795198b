package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"

	"redminetoado/config"
	"redminetoado/models"
	"redminetoado/utils"
)

// RedmineClient はRedmine REST APIとのやり取りを処理します
type RedmineClient struct {
	config *config.Config
	client *http.Client
	pacer  Pacer
}

// NewRedmineClient は新しいRedmineクライアントを作成します
func NewRedmineClient(cfg *config.Config, pacer Pacer) *RedmineClient {
	return &RedmineClient{
		config: cfg,
		client: &http.Client{},
		pacer:  pacer,
	}
}

// CheckAuth はRedmine APIの認証をチェックします
func (r *RedmineClient) CheckAuth(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/users/current.json", r.config.RedmineURL)

	if _, err := r.get(ctx, endpoint); err != nil {
		return errors.Wrap(err, "Redmine認証失敗")
	}
	return nil
}

// issuesPage はイシュー一覧APIの1ページ分のレスポンスです
type issuesPage struct {
	Issues     []models.RedmineIssue `json:"issues"`
	TotalCount int                   `json:"total_count"`
	Offset     int                   `json:"offset"`
	Limit      int                   `json:"limit"`
}

// ListIssues は対象イシューの一覧をページングしながらすべて取得します
// projectが空でない場合はそのプロジェクトのイシューに限定します
func (r *RedmineClient) ListIssues(ctx context.Context, project string) ([]models.RedmineIssue, error) {
	limit := r.config.PageSize
	if limit <= 0 {
		limit = 100
	}

	var all []models.RedmineIssue
	offset := 0

	for {
		// ページ取得ごとにペーシングを適用
		if err := r.pacer.Pace(ctx); err != nil {
			return nil, err
		}

		endpoint := fmt.Sprintf("%s/issues.json?status_id=*&limit=%d&offset=%d",
			r.config.RedmineURL, limit, offset)
		if project != "" {
			endpoint += "&project_id=" + url.QueryEscape(project)
		}

		body, err := r.get(ctx, endpoint)
		if err != nil {
			return nil, errors.Wrapf(err, "イシュー一覧取得エラー (offset=%d)", offset)
		}

		var page issuesPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errors.Wrap(err, "レスポンス解析エラー")
		}

		all = append(all, page.Issues...)
		utils.LogInfo("イシュー一覧を取得しました: %d/%d 件", len(all), page.TotalCount)

		if len(page.Issues) < limit || len(all) >= page.TotalCount {
			break
		}
		offset += limit
	}

	return all, nil
}

// issueDetail はイシュー詳細APIのレスポンスです
type issueDetail struct {
	Issue models.RedmineIssue `json:"issue"`
}

// GetIssue はジャーナル・添付・関連を含むイシューの詳細を取得します
// イシューが存在しない場合は (nil, nil) を返します
func (r *RedmineClient) GetIssue(ctx context.Context, id int) (*models.RedmineIssue, error) {
	if err := r.pacer.Pace(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/issues/%d.json?include=journals,attachments,relations,children",
		r.config.RedmineURL, id)

	body, err := r.get(ctx, endpoint)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "イシュー詳細取得エラー (id=%d)", id)
	}

	var detail issueDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, errors.Wrap(err, "レスポンス解析エラー")
	}

	return &detail.Issue, nil
}

// DownloadAttachment は添付ファイルの内容をダウンロードします
// ファイルが存在しない場合は (nil, nil) を返します
func (r *RedmineClient) DownloadAttachment(ctx context.Context, contentURL string) ([]byte, error) {
	if err := r.pacer.Pace(ctx); err != nil {
		return nil, err
	}

	body, err := r.get(ctx, contentURL)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "添付ファイルダウンロードエラー")
	}

	return body, nil
}

// get はAPIキー付きのGETリクエストをリトライ付きで実行します
func (r *RedmineClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte

	err := withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "リクエスト作成エラー"))
		}
		req.Header.Set("X-Redmine-API-Key", r.config.RedmineAPIKey)

		resp, err := r.client.Do(req)
		if err != nil {
			return errors.Wrap(err, "リクエスト送信エラー")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "レスポンス読み取りエラー")
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case retryableStatus(resp.StatusCode):
			return errors.Newf("一時的なエラー: HTTP %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(errors.Newf("リクエスト失敗: HTTP %d: %s", resp.StatusCode, string(data)))
		}

		body = data
		return nil
	})

	return body, err
}
