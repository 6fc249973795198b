package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redminetoado/config"
)

// nopPacer はテスト用の待機しないペーサーです
type nopPacer struct{}

func (nopPacer) Pace(ctx context.Context) error { return nil }

func redmineTestConfig(serverURL string) *config.Config {
	return &config.Config{
		RedmineURL:    serverURL,
		RedmineAPIKey: "test-key",
		PageSize:      2,
	}
}

func TestListIssuesPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Redmine-API-Key"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		switch r.URL.Query().Get("offset") {
		case "0":
			fmt.Fprint(w, `{"issues":[{"id":1,"subject":"一"},{"id":2,"subject":"二"}],"total_count":3,"offset":0,"limit":2}`)
		case "2":
			fmt.Fprint(w, `{"issues":[{"id":3,"subject":"三"}],"total_count":3,"offset":2,"limit":2}`)
		default:
			t.Errorf("予期しないoffset: %s", r.URL.Query().Get("offset"))
		}
	}))
	defer server.Close()

	client := NewRedmineClient(redmineTestConfig(server.URL), nopPacer{})

	issues, err := client.ListIssues(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, issues, 3)
	assert.Equal(t, 1, issues[0].ID)
	assert.Equal(t, 2, issues[1].ID)
	assert.Equal(t, 3, issues[2].ID)
}

func TestListIssuesProjectFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "migrated", r.URL.Query().Get("project_id"))
		fmt.Fprint(w, `{"issues":[],"total_count":0,"offset":0,"limit":2}`)
	}))
	defer server.Close()

	client := NewRedmineClient(redmineTestConfig(server.URL), nopPacer{})

	issues, err := client.ListIssues(context.Background(), "migrated")
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestGetIssueParsesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issues/42.json", r.URL.Path)
		assert.Equal(t, "journals,attachments,relations,children", r.URL.Query().Get("include"))
		fmt.Fprint(w, `{"issue":{
			"id":42,
			"subject":"詳細テスト",
			"tracker":{"id":1,"name":"Bug"},
			"parent":{"id":7},
			"relations":[{"id":9,"issue_id":42,"issue_to_id":43,"relation_type":"relates"}]
		}}`)
	}))
	defer server.Close()

	client := NewRedmineClient(redmineTestConfig(server.URL), nopPacer{})

	issue, err := client.GetIssue(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, issue)

	assert.Equal(t, 42, issue.ID)
	assert.Equal(t, "Bug", issue.Tracker.Name)
	require.NotNil(t, issue.Parent)
	assert.Equal(t, 7, issue.Parent.ID)
	require.Len(t, issue.Relations, 1)
	assert.Equal(t, "relates", issue.Relations[0].RelationType)
}

func TestGetIssueNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewRedmineClient(redmineTestConfig(server.URL), nopPacer{})

	issue, err := client.GetIssue(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestDownloadAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file body"))
	}))
	defer server.Close()

	client := NewRedmineClient(redmineTestConfig(server.URL), nopPacer{})

	data, err := client.DownloadAttachment(context.Background(), server.URL+"/attachments/download/1/log.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("file body"), data)
}

func TestCheckAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewRedmineClient(redmineTestConfig(server.URL), nopPacer{})

	assert.Error(t, client.CheckAuth(context.Background()))
}
