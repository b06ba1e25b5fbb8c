package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应可加载: %v", err)
	}

	if cfg.Scheduler.Interval != 10*time.Minute {
		t.Fatalf("默认调度间隔应为 10m, 实际 %v", cfg.Scheduler.Interval)
	}
	if cfg.Delivery.Attempts != 3 || cfg.Delivery.Delay != 3*time.Second {
		t.Fatalf("默认投递重试参数不符: %d / %v", cfg.Delivery.Attempts, cfg.Delivery.Delay)
	}
	if cfg.Report.OnPartialFailure != PolicyDegrade {
		t.Fatalf("默认部分失败策略应为降级, 实际 %q", cfg.Report.OnPartialFailure)
	}
	if zone := cfg.ReportZone(); zone.String() != "UTC+3" {
		t.Fatalf("默认报告时区应为 UTC+3, 实际 %s", zone)
	}
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应可加载: %v", err)
	}

	cfg.Report.OnPartialFailure = "retry"
	if err := cfg.Validate(); err == nil {
		t.Fatal("未知的部分失败策略应被拒绝")
	}
}

func TestValidateChainlinkNeedsRPC(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("默认配置应可加载: %v", err)
	}

	cfg.Rates.Chainlink.Enabled = true
	cfg.Rates.Chainlink.RPCURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("启用链上回退时缺少 rpc_url 应被拒绝")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if got := cfg.ResolveMaxPoints(0); got != 500 {
		t.Fatalf("无覆盖时应取配置默认值, 实际 %d", got)
	}
	if got := cfg.ResolveMaxPoints(42); got != 42 {
		t.Fatalf("命令行覆盖应优先, 实际 %d", got)
	}
}
