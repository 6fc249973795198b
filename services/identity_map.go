package services

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"

	"redminetoado/models"
)

// ErrDuplicateKey はソースIDの二重登録を表します
// 通常のフローでは各イシューは一度しか処理されないため、発生した場合は
// オーケストレーションのバグです
var ErrDuplicateKey = errors.New("ソースIDは既に登録されています")

// IdentityMap はRedmineイシューIDからAzure DevOps作業項目IDへの対応表です
// 書き込みはノード作成フェーズのみ、読み取りは関連解決フェーズで並行に行われます
type IdentityMap struct {
	mu      sync.RWMutex
	entries models.IssueMapping
}

// NewIdentityMap は空の対応表を作成します
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		entries: make(models.IssueMapping),
	}
}

// Put はソースIDとターゲットIDの対応を登録します
// 既に登録済みのソースIDに対してはErrDuplicateKeyを返します
func (m *IdentityMap) Put(sourceID, targetID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[sourceID]; ok {
		return errors.Wrapf(ErrDuplicateKey, "id=%d", sourceID)
	}
	m.entries[sourceID] = targetID
	return nil
}

// Get はソースIDに対応するターゲットIDを返します
func (m *IdentityMap) Get(sourceID int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targetID, ok := m.entries[sourceID]
	return targetID, ok
}

// Len は登録済みの対応の件数を返します
func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Snapshot は対応表のコピーを返します
func (m *IdentityMap) Snapshot() models.IssueMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(models.IssueMapping, len(m.entries))
	for sourceID, targetID := range m.entries {
		snapshot[sourceID] = targetID
	}
	return snapshot
}

// SaveToFile は対応表をJSONファイル（ソースID → ターゲットIDのフラットな
// オブジェクト）として書き出します
func (m *IdentityMap) SaveToFile(path string) error {
	m.mu.RLock()
	flat := make(map[string]int, len(m.entries))
	for sourceID, targetID := range m.entries {
		flat[strconv.Itoa(sourceID)] = targetID
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return errors.Wrap(err, "JSONエンコードエラー")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "対応表ファイル書き込みエラー")
	}
	return nil
}

// LoadIdentityMap はJSONファイルから対応表を読み込みます
func LoadIdentityMap(path string) (*IdentityMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "対応表ファイルオープンエラー")
	}

	var flat map[string]int
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, errors.Wrap(err, "対応表ファイル解析エラー")
	}

	m := NewIdentityMap()
	for key, targetID := range flat {
		sourceID, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "不正なソースID: %q", key)
		}
		if err := m.Put(sourceID, targetID); err != nil {
			return nil, err
		}
	}
	return m, nil
}
