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
	help := flag.Bool("help", false, "ヘルプを表示する")

	flag.Parse()

	if *help {
		printHelp()
		return
	}

	utils.Initialize()
	utils.LogInfo("認証確認ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pacer := services.NewPacer(time.Duration(cfg.APIDelayMS) * time.Millisecond)

	// Redmine認証チェック
	utils.LogInfo("Redmine APIの認証を確認しています...")
	redmineClient := api.NewRedmineClient(cfg, pacer)
	if err := redmineClient.CheckAuth(ctx); err != nil {
		utils.LogError("Redmine認証エラー: %v", err)
		utils.LogError("認証情報を確認してください。")
		os.Exit(1)
	}
	utils.LogInfo("Redmine認証成功！ 接続先: %s", cfg.RedmineURL)

	// Azure DevOps認証チェック
	utils.LogInfo("Azure DevOps APIの認証を確認しています...")
	azureClient := api.NewAzureClient(cfg, pacer)
	if err := azureClient.CheckAuth(ctx); err != nil {
		utils.LogError("Azure DevOps認証エラー: %v", err)
		utils.LogError("認証情報を確認してください。")
		os.Exit(1)
	}
	utils.LogInfo("Azure DevOps認証成功！ 接続先: %s/%s", cfg.AzureOrgURL, cfg.AzureProject)

	utils.LogInfo("両システムのAPI認証情報は正常です。")
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
認証確認ツール

使用方法:
  %s [オプション]

オプション:
  -help               このヘルプを表示する

環境変数:
  REDMINE_URL         Redmine URL (必須)
  REDMINE_API_KEY     Redmine APIキー (必須)
  AZURE_ORG_URL       Azure DevOps組織URL (必須)
  AZURE_PROJECT       Azure DevOpsプロジェクト名 (必須)
  AZURE_PAT           Azure DevOps Personal Access Token (必須)

説明:
  このツールはRedmineとAzure DevOps両方のAPI認証情報が正しく
  設定されているかを確認します。
  認証が成功すれば、移行ツールも正常に動作する可能性が高いです。
`, os.Args[0])
}
