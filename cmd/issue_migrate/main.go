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
	project := flag.String("project", "", "移行対象のRedmineプロジェクト識別子（省略時は環境変数から取得）")
	maxConcurrent := flag.Int("concurrent", 0, "並列処理の最大数（0の場合は設定ファイルの値を使用）")
	help := flag.Bool("help", false, "ヘルプを表示する")

	flag.Parse()

	if *help {
		printHelp()
		return
	}

	utils.Initialize()

	startTime := time.Now()
	utils.LogInfo("イシュー移行ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	if *project != "" {
		cfg.RedmineProject = *project
		utils.LogInfo("対象プロジェクトを指定: %s", cfg.RedmineProject)
	}
	if *maxConcurrent > 0 {
		cfg.MaxConcurrent = *maxConcurrent
		utils.LogInfo("並列処理数を指定: %d", cfg.MaxConcurrent)
	}

	ctx := context.Background()
	pacer := services.NewPacer(time.Duration(cfg.APIDelayMS) * time.Millisecond)
	redmineClient := api.NewRedmineClient(cfg, pacer)
	azureClient := api.NewAzureClient(cfg, pacer)

	// 認証情報の確認
	utils.LogInfo("認証情報を確認しています...")
	if err := redmineClient.CheckAuth(ctx); err != nil {
		utils.LogError("Redmine認証エラー: %v", err)
		os.Exit(1)
	}
	if err := azureClient.CheckAuth(ctx); err != nil {
		utils.LogError("Azure DevOps認証エラー: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("認証成功")

	// イシュー移行の実行（関連リンクはスキップ）
	migrationService := services.NewMigrationService(cfg, redmineClient, azureClient)
	if err := migrationService.Run(ctx, true, false, false); err != nil {
		utils.LogError("イシュー移行エラー: %v", err)
		os.Exit(1)
	}

	elapsed := time.Since(startTime)
	utils.LogInfo("イシューの移行が完了しました。処理時間: %s", elapsed)
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
イシュー移行ツール

使用方法:
  %s [オプション]

オプション:
  -project 識別子     移行対象のRedmineプロジェクト
  -concurrent 数      並列処理の最大数
  -help               このヘルプを表示する

説明:
  このツールはRedmineのイシューをAzure DevOpsの作業項目として
  作成し、コメントと添付ファイルを移行します。
  関連リンクは作成しません（relation_link ツールを使用してください）。

  作成された対応表（Redmine ID → 作業項目ID）はJSONファイルに
  書き出され、後続のツールと再開時に使用されます。
`, os.Args[0])
}
