package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"

	"redminetoado/config"
	"redminetoado/models"
)

// ErrSelfLink は自己参照リンクの作成要求を表します
var ErrSelfLink = errors.New("自己参照リンクは作成できません")

// AzureClient はAzure DevOps Work Item Tracking APIとのやり取りを処理します
type AzureClient struct {
	config *config.Config
	client *http.Client
	pacer  Pacer
}

// NewAzureClient は新しいAzure DevOpsクライアントを作成します
func NewAzureClient(cfg *config.Config, pacer Pacer) *AzureClient {
	return &AzureClient{
		config: cfg,
		client: &http.Client{},
		pacer:  pacer,
	}
}

// patchOp はJSON Patchの1操作を表します
type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// CheckAuth はAzure DevOpsの認証とプロジェクトの存在をチェックします
func (a *AzureClient) CheckAuth(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/_apis/projects/%s?api-version=7.0",
		a.config.AzureOrgURL, url.PathEscape(a.config.AzureProject))

	_, err := a.do(ctx, http.MethodGet, endpoint, "", nil, http.StatusOK)
	if err != nil {
		return errors.Wrap(err, "Azure DevOps認証失敗")
	}
	return nil
}

// createResult は作業項目作成・添付アップロードのレスポンスです
type createResult struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// CreateWorkItem は指定タイプの作業項目を作成し、そのIDを返します
func (a *AzureClient) CreateWorkItem(ctx context.Context, workItemType string, fields models.WorkItemFields) (int, error) {
	if err := a.pacer.Pace(ctx); err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/$%s?api-version=7.0&bypassRules=true",
		a.config.AzureOrgURL, url.PathEscape(a.config.AzureProject), url.PathEscape(workItemType))

	// フィールド順を安定させる（再実行時のリクエストを再現可能にする）
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	ops := make([]patchOp, 0, len(fields))
	for _, name := range names {
		ops = append(ops, patchOp{Op: "add", Path: "/fields/" + name, Value: fields[name]})
	}

	payload, err := json.Marshal(ops)
	if err != nil {
		return 0, errors.Wrap(err, "JSONエンコードエラー")
	}

	body, err := a.do(ctx, http.MethodPost, endpoint, "application/json-patch+json", payload, http.StatusOK)
	if err != nil {
		return 0, errors.Wrap(err, "作業項目作成失敗")
	}

	var result createResult
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, errors.Wrap(err, "レスポンス解析エラー")
	}
	if result.ID == 0 {
		return 0, errors.New("作業項目IDが見つかりません")
	}

	return result.ID, nil
}

// AddComment は作業項目にコメントを追加します（追記のみ）
func (a *AzureClient) AddComment(ctx context.Context, workItemID int, text string) error {
	if err := a.pacer.Pace(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workItems/%d/comments?api-version=7.0-preview.3",
		a.config.AzureOrgURL, url.PathEscape(a.config.AzureProject), workItemID)

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return errors.Wrap(err, "JSONエンコードエラー")
	}

	if _, err := a.do(ctx, http.MethodPost, endpoint, "application/json", payload, http.StatusOK, http.StatusCreated); err != nil {
		return errors.Wrap(err, "コメント追加失敗")
	}
	return nil
}

// UploadAttachment はファイル内容を添付ストレージにアップロードし、そのURLを返します
func (a *AzureClient) UploadAttachment(ctx context.Context, data []byte, filename string) (string, error) {
	if err := a.pacer.Pace(ctx); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/attachments?fileName=%s&api-version=7.0",
		a.config.AzureOrgURL, url.PathEscape(a.config.AzureProject), url.QueryEscape(filename))

	body, err := a.do(ctx, http.MethodPost, endpoint, "application/octet-stream", data, http.StatusOK, http.StatusCreated)
	if err != nil {
		return "", errors.Wrap(err, "添付ファイルアップロード失敗")
	}

	var result createResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(err, "レスポンス解析エラー")
	}
	if result.URL == "" {
		return "", errors.New("添付ファイルURLが見つかりません")
	}

	return result.URL, nil
}

// LinkAttachment はアップロード済みの添付ファイルを作業項目に関連付けます
func (a *AzureClient) LinkAttachment(ctx context.Context, workItemID int, attachmentURL, filename string) error {
	rel := map[string]interface{}{
		"rel": "AttachedFile",
		"url": attachmentURL,
		"attributes": map[string]string{
			"name": filename,
		},
	}
	return a.addRelation(ctx, workItemID, rel)
}

// CreateLink は2つの作業項目の間に型付きリンクを作成します
// fromID == toID の場合はリンクを作成せずエラーを返します
func (a *AzureClient) CreateLink(ctx context.Context, fromID, toID int, linkType, comment string) error {
	if fromID == toID {
		return errors.Wrapf(ErrSelfLink, "id=%d", fromID)
	}

	attributes := map[string]string{}
	if comment != "" {
		attributes["comment"] = comment
	}

	rel := map[string]interface{}{
		"rel": linkType,
		"url": fmt.Sprintf("%s/%s/_apis/wit/workItems/%d",
			a.config.AzureOrgURL, url.PathEscape(a.config.AzureProject), toID),
		"attributes": attributes,
	}
	return a.addRelation(ctx, fromID, rel)
}

// addRelation は作業項目のrelationsにエントリを追記します
func (a *AzureClient) addRelation(ctx context.Context, workItemID int, rel map[string]interface{}) error {
	if err := a.pacer.Pace(ctx); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/%d?api-version=7.0",
		a.config.AzureOrgURL, url.PathEscape(a.config.AzureProject), workItemID)

	ops := []patchOp{{Op: "add", Path: "/relations/-", Value: rel}}
	payload, err := json.Marshal(ops)
	if err != nil {
		return errors.Wrap(err, "JSONエンコードエラー")
	}

	if _, err := a.do(ctx, http.MethodPatch, endpoint, "application/json-patch+json", payload, http.StatusOK); err != nil {
		return errors.Wrap(err, "リンク作成失敗")
	}
	return nil
}

// do はPAT認証付きのリクエストをリトライ付きで実行します
func (a *AzureClient) do(ctx context.Context, method, endpoint, contentType string, payload []byte, okStatuses ...int) ([]byte, error) {
	var body []byte

	err := withRetry(ctx, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "リクエスト作成エラー"))
		}
		req.SetBasicAuth("", a.config.AzurePAT)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return errors.Wrap(err, "リクエスト送信エラー")
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "レスポンス読み取りエラー")
		}

		for _, ok := range okStatuses {
			if resp.StatusCode == ok {
				body = data
				return nil
			}
		}

		if retryableStatus(resp.StatusCode) {
			return errors.Newf("一時的なエラー: HTTP %d", resp.StatusCode)
		}
		return backoff.Permanent(errors.Newf("リクエスト失敗: HTTP %d: %s", resp.StatusCode, string(data)))
	})

	return body, err
}
