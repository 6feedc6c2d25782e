package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"hiring-platform/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("hiring-platform cli 0.1.0")
	case "health":
		runHealth()
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runProcess("./cmd/api")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: hirectl server start\n")
			os.Exit(1)
		}
	case "worker":
		if len(args) > 0 && args[0] == "start" {
			runProcess("./cmd/worker")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: hirectl worker start\n")
			os.Exit(1)
		}
	case "job":
		runJob(args)
	case "invite":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: hirectl invite <application_id>\n")
			os.Exit(1)
		}
		runInvite(args[0])
	case "candidates":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: hirectl candidates <job_id> [status=...]\n")
			os.Exit(1)
		}
		runCandidates(args[0], args[1:])
	case "logs":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: hirectl logs <job_id> [action_type=...] [limit=...]\n")
			os.Exit(1)
		}
		runLogs(args[0], args[1:])
	case "analytics":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: hirectl analytics <job_id>\n")
			os.Exit(1)
		}
		runAnalytics(args[0])
	case "syshealth":
		runSystemHealth()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: hirectl <command> [args]")
	fmt.Println("  version              - 显示版本")
	fmt.Println("  health               - API 健康检查")
	fmt.Println("  config               - 显示配置概要")
	fmt.Println("  server start         - 启动 API 服务（go run ./cmd/api）")
	fmt.Println("  worker start         - 启动 Worker 服务（go run ./cmd/worker）")
	fmt.Println("  job list             - 列出职位")
	fmt.Println("  job get <id>         - 查看职位")
	fmt.Println("  job close <id>       - 关闭投递并触发自动入围")
	fmt.Println("  invite <app_id>      - 手工发出面试邀约")
	fmt.Println("  candidates <job_id>  - 看板：排名候选人（可加 status=shortlisted）")
	fmt.Println("  logs <job_id>        - 看板：自动化日志（可加 action_type=、limit=）")
	fmt.Println("  analytics <job_id>   - 看板：漏斗与面试统计")
	fmt.Println("  syshealth            - 系统健康档位与告警")
	fmt.Println()
	fmt.Println("环境变量: HIRING_API_URL（默认 http://localhost:8080）、HIRING_API_TOKEN（招聘方端点的 Bearer）")
}

func runConfig() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg != nil {
		fmt.Printf("api.port=%d\n", cfg.API.Port)
		fmt.Printf("api.host=%s\n", cfg.API.Host)
		fmt.Printf("storage.primary.type=%s\n", cfg.Storage.Primary.Type)
		fmt.Printf("automation.cycle_period=%s\n", cfg.Automation.CyclePeriod)
	}
}

func runProcess(path string) {
	c := exec.Command("go", "run", path)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "start %s: %v\n", path, err)
		os.Exit(1)
	}
}

func runHealth() {
	out, err := getHealth()
	if err != nil {
		fmt.Fprintf(os.Stderr, "健康检查失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runJob(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: hirectl job <list|get|close> [id]\n")
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		jobs, err := listJobs()
		if err != nil {
			fmt.Fprintf(os.Stderr, "列出职位失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(prettyJSON(jobs))
	case "get":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: hirectl job get <id>\n")
			os.Exit(1)
		}
		job, err := getJob(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "查看职位失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(prettyJSON(job))
	case "close":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: hirectl job close <id>\n")
			os.Exit(1)
		}
		out, err := closeJob(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "关闭投递失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(prettyJSON(out))
	default:
		fmt.Fprintf(os.Stderr, "未知子命令: job %s\n", args[0])
		os.Exit(1)
	}
}

func runInvite(applicationID string) {
	out, err := sendInvitation(applicationID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "发出邀约失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runCandidates(jobID string, args []string) {
	out, err := dashboardCandidates(jobID, queryFromArgs(args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取候选人失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runLogs(jobID string, args []string) {
	out, err := dashboardActivityLog(jobID, queryFromArgs(args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取日志失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runAnalytics(jobID string) {
	out, err := dashboardAnalytics(jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取统计失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runSystemHealth() {
	out, err := getSystemHealth()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取系统健康失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

// queryFromArgs 把 key=value 形式的参数转成查询参数；
// 不含 = 或 key 为空的参数跳过
func queryFromArgs(args []string) map[string]string {
	q := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			continue
		}
		q[k] = v
	}
	return q
}
