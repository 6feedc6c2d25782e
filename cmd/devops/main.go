// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// devops 面向运维的直连存储工具：特性开关管理与发件箱巡检。
// 开关记录缺失时解析端会放行（fail-open），seed 把全部已知开关
// 显式落库，线上的开关状态从此可见可审计。
// 使用：go run ./cmd/devops <flags|outbox> ...
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"hiring-platform/internal/app"
	"hiring-platform/internal/flags"
	"hiring-platform/internal/outbound/email"
	"hiring-platform/internal/storage"
	"hiring-platform/pkg/config"
)

// knownFlags 系统识别的全部开关与说明
var knownFlags = []storage.FeatureFlag{
	{Name: flags.GlobalAutomation, Enabled: true, Description: "总开关：邀约、到期处理与循环扫描"},
	{Name: flags.AutoShortlisting, Enabled: true, Description: "投递关闭后自动入围"},
	{Name: flags.AutoPromotion, Enabled: true, Description: "候补自动补位与回填"},
	{Name: flags.NegotiationBot, Enabled: true, Description: "时段协商机器人"},
	{Name: flags.GeminiParsing, Enabled: true, Description: "可用性消息的 LLM 解析（失败回退规则解析）"},
	{Name: flags.GeminiResponses, Enabled: true, Description: "协商回复的 LLM 生成（失败回退模板）"},
	{Name: flags.CalendarIntegration, Enabled: true, Description: "确认时创建日历事件、选时段校验空闲"},
	{Name: flags.NoShowPrediction, Enabled: true, Description: "已确认面试的到场风险刷新"},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	ctx := context.Background()
	bootstrap, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer bootstrap.Close()

	switch os.Args[1] {
	case "flags":
		runFlags(ctx, bootstrap, os.Args[2:])
	case "outbox":
		runOutbox(ctx, bootstrap)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: devops <command> [args]")
	fmt.Println("  flags list               - 列出已落库的特性开关")
	fmt.Println("  flags seed               - 把全部已知开关落库（已存在的保持现状）")
	fmt.Println("  flags enable <name>      - 打开开关")
	fmt.Println("  flags disable <name>     - 关闭开关")
	fmt.Println("  outbox                   - 发件箱各状态计数（需 postgres 存储）")
}

func runFlags(ctx context.Context, bootstrap *app.Bootstrap, args []string) {
	store := bootstrap.Store
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: devops flags <list|seed|enable|disable> [name]")
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		list, err := store.ListFlags(ctx)
		if err != nil {
			log.Fatalf("列出开关失败: %v", err)
		}
		if len(list) == 0 {
			fmt.Println("（空：所有开关走 fail-open 默认放行）")
			return
		}
		for _, f := range list {
			fmt.Printf("%-22s enabled=%-5v %s\n", f.Name, f.Enabled, f.Description)
		}
	case "seed":
		seeded := 0
		for i := range knownFlags {
			f := knownFlags[i]
			if _, err := store.GetFlag(ctx, f.Name); err == nil {
				continue
			}
			if err := store.UpsertFlag(ctx, &f); err != nil {
				log.Fatalf("落库开关 %s 失败: %v", f.Name, err)
			}
			seeded++
		}
		fmt.Printf("落库 %d 个开关\n", seeded)
	case "enable", "disable":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: devops flags %s <name>\n", args[0])
			os.Exit(1)
		}
		name := args[1]
		f, err := store.GetFlag(ctx, name)
		if err != nil {
			f = &storage.FeatureFlag{Name: name}
		}
		f.Enabled = args[0] == "enable"
		if err := store.UpsertFlag(ctx, f); err != nil {
			log.Fatalf("写入开关失败: %v", err)
		}
		fmt.Printf("%s enabled=%v\n", f.Name, f.Enabled)
	default:
		fmt.Fprintf(os.Stderr, "未知子命令: flags %s\n", args[0])
		os.Exit(1)
	}
}

func runOutbox(ctx context.Context, bootstrap *app.Bootstrap) {
	pool := bootstrap.PgPool()
	if pool == nil {
		fmt.Fprintln(os.Stderr, "发件箱巡检需要 storage.primary.type=postgres")
		os.Exit(1)
	}
	counts, err := email.NewPgQueue(pool).CountByStatus(ctx)
	if err != nil {
		log.Fatalf("发件箱计数失败: %v", err)
	}
	for _, status := range []string{email.StatusPending, email.StatusClaimed, email.StatusSent, email.StatusFailed} {
		fmt.Printf("%-8s %d\n", status, counts[status])
	}
}
