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
	mappingFile := flag.String("mapping", "", "ID対応表JSONのパス（省略時は環境変数から取得）")
	maxConcurrent := flag.Int("concurrent", 0, "並列処理の最大数（0の場合は設定ファイルの値を使用）")
	help := flag.Bool("help", false, "ヘルプを表示する")

	flag.Parse()

	if *help {
		printHelp()
		return
	}

	utils.Initialize()

	startTime := time.Now()
	utils.LogInfo("添付ファイル移行ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	if *mappingFile != "" {
		cfg.MappingFile = *mappingFile
		utils.LogInfo("対応表ファイルを指定: %s", cfg.MappingFile)
	}
	if *maxConcurrent > 0 {
		cfg.MaxConcurrent = *maxConcurrent
	}

	// 対応表ファイルの存在確認
	if _, err := os.Stat(cfg.MappingFile); os.IsNotExist(err) {
		utils.LogError("ID対応表が見つかりません: %s", cfg.MappingFile)
		utils.LogError("先に issue_migrate ツールを実行してください。")
		os.Exit(1)
	}

	ctx := context.Background()
	pacer := services.NewPacer(time.Duration(cfg.APIDelayMS) * time.Millisecond)
	redmineClient := api.NewRedmineClient(cfg, pacer)
	azureClient := api.NewAzureClient(cfg, pacer)

	if err := azureClient.CheckAuth(ctx); err != nil {
		utils.LogError("Azure DevOps認証エラー: %v", err)
		os.Exit(1)
	}

	// 添付ファイルのみの移行を実行
	migrationService := services.NewMigrationService(cfg, redmineClient, azureClient)
	if err := migrationService.Run(ctx, false, true, false); err != nil {
		utils.LogError("添付ファイル移行エラー: %v", err)
		os.Exit(1)
	}

	elapsed := time.Since(startTime)
	utils.LogInfo("添付ファイルの移行が完了しました。処理時間: %s", elapsed)
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
添付ファイル移行ツール

使用方法:
  %s [オプション]

オプション:
  -mapping ファイル    使用するID対応表JSON
  -concurrent 数      並列処理の最大数
  -help               このヘルプを表示する

説明:
  このツールは既存のID対応表を使い、移行済みの作業項目に
  Redmineの添付ファイルをアップロードします。
  イシュー移行後に添付だけ失敗した場合の再実行に使用します。
`, os.Args[0])
}
