package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"redminetoado/api"
	"redminetoado/config"
	"redminetoado/services"
	"redminetoado/utils"
)

func main() {
	// コマンドラインフラグの定義
	issuesOnly := flag.Bool("issues-only", false, "イシューの移行のみを実行する（関連リンクをスキップ）")
	attachmentsOnly := flag.Bool("attachments-only", false, "添付ファイルの移行のみを実行する")
	relationsOnly := flag.Bool("relations-only", false, "関連リンクの作成のみを実行する")
	maxConcurrent := flag.Int("concurrent", 0, "並列処理の最大数（0の場合は設定ファイルの値を使用）")
	help := flag.Bool("help", false, "ヘルプを表示する")

	flag.Parse()

	if *help {
		printHelp()
		return
	}

	utils.Initialize()

	// 開始時間の記録
	startTime := time.Now()

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	// 並列処理数の上書き（指定された場合のみ）
	if *maxConcurrent > 0 {
		cfg.MaxConcurrent = *maxConcurrent
	}

	utils.LogInfo("Redmine → Azure DevOps 移行ツール (v1.0.0)")
	utils.LogInfo("設定読み込み完了 (Max Concurrent: %d, API Delay: %dms)",
		cfg.MaxConcurrent, cfg.APIDelayMS)

	ctx := context.Background()

	// 必要なサービスの初期化
	pacer := services.NewPacer(time.Duration(cfg.APIDelayMS) * time.Millisecond)
	redmineClient := api.NewRedmineClient(cfg, pacer)
	azureClient := api.NewAzureClient(cfg, pacer)

	// 両システムへの接続確認（失敗した場合は移行を開始しない）
	if err := redmineClient.CheckAuth(ctx); err != nil {
		utils.LogError("Redmine認証エラー: %v", err)
		os.Exit(1)
	}
	if err := azureClient.CheckAuth(ctx); err != nil {
		utils.LogError("Azure DevOps認証エラー: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("両システムへの認証成功")

	migrationService := services.NewMigrationService(cfg, redmineClient, azureClient)

	// 移行の実行
	if err := migrationService.Run(ctx, *issuesOnly, *attachmentsOnly, *relationsOnly); err != nil {
		utils.LogError("移行処理に失敗しました: %v", err)
		os.Exit(1)
	}

	elapsed := time.Since(startTime)
	utils.LogInfo("移行処理が完了しました。合計実行時間: %s", elapsed)
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Redmine → Azure DevOps 移行ツール

使用方法:
  %s [オプション]

オプション:
  -issues-only        イシューの移行のみを実行する（関連リンクをスキップ）
  -attachments-only   添付ファイルの移行のみを実行する
  -relations-only     関連リンクの作成のみを実行する
  -concurrent=N       並列処理の最大数を指定する
  -help               このヘルプを表示する

環境変数:
  REDMINE_URL         Redmine URL (必須)
  REDMINE_API_KEY     Redmine APIキー (必須)
  REDMINE_PROJECT     移行対象のRedmineプロジェクト識別子（省略時は全イシュー）
  AZURE_ORG_URL       Azure DevOps組織URL (必須)
  AZURE_PROJECT       Azure DevOpsプロジェクト名 (必須)
  AZURE_PAT           Azure DevOps Personal Access Token (必須)
  MAPPING_YAML        マッピングテーブル定義YAML (デフォルト: mapping.yml)
  MAPPING_FILE        ID対応表の出力先JSON (デフォルト: id_mapping.json)
  RESULT_CSV          結果レポートの出力先CSV (デフォルト: migration_result.csv)
  RESUME_MAPPING      再開時に読み込む既存のID対応表JSON（任意）
  MAX_CONCURRENT      並列処理の最大数 (デフォルト: 5)
  PAGE_SIZE           イシュー一覧の1ページ件数 (デフォルト: 100)
  API_DELAY_MS        API呼び出しの最小間隔ミリ秒 (デフォルト: 500)

例:
  # すべての処理を実行
  %s

  # イシューの移行のみを実行
  %s -issues-only

  # 既存の対応表を使って関連リンクのみ作成
  %s -relations-only
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}
