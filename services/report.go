package services

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"

	"redminetoado/models"
	"redminetoado/utils"
)

// WriteResultCSV は移行結果のレポートCSVを作成します
// 1行が1イシューで、対応する作業項目IDと結果を含みます
func (m *MigrationService) WriteResultCSV(issues []models.RedmineIssue) error {
	utils.LogInfo("結果レポート '%s' を作成します", m.config.ResultCSV)

	file, err := os.Create(m.config.ResultCSV)
	if err != nil {
		return errors.Wrap(err, "CSVファイル作成エラー")
	}
	defer file.Close()

	headers := []string{
		"Redmine ID", "Tracker", "Subject", "Work Item ID", "Result",
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(headers); err != nil {
		return errors.Wrap(err, "ヘッダー書き込みエラー")
	}

	for i := range issues {
		issue := &issues[i]

		workItemID := ""
		result := "FAILED"
		if targetID, ok := m.idMap.Get(issue.ID); ok {
			workItemID = strconv.Itoa(targetID)
			result = "OK"
		}

		row := []string{
			strconv.Itoa(issue.ID),
			issue.Tracker.Name,
			issue.Subject,
			workItemID,
			result,
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "行書き込みエラー")
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "CSV書き込み完了エラー")
	}

	utils.LogInfo("結果レポート書き込み完了: %d 行", len(issues))
	return nil
}
