package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mlit-mcp/mlit-mcp/internal/cache"
	"github.com/mlit-mcp/mlit-mcp/internal/config"
	"github.com/mlit-mcp/mlit-mcp/internal/logging"
	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
	"github.com/mlit-mcp/mlit-mcp/internal/server"
	"github.com/mlit-mcp/mlit-mcp/internal/tools"
	"github.com/mlit-mcp/mlit-mcp/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	envFile     string
	checkOnly   bool
	showVersion bool
}

var (
	stdIn  io.Reader = os.Stdin
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		fmt.Fprintf(stdErr, "加载 .env 失败: %v\n", err)
		return 1
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["base_url"] = cfg.Upstream.BaseURL
		fields["api_key"] = cfg.Upstream.MaskedAPIKey()
		fields["cache_dir"] = cfg.Cache.CacheDir
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startToolServer(ctx, cfg, logger, opts.configPath); err != nil {
		fmt.Fprintf(stdErr, "服务运行失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("mlit-mcp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（可选，可被 MLIT_MCP_CONFIG 指定）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("MLIT_MCP_CONFIG")
	if configFlag != "" {
		path = configFlag
	}

	envFile := os.Getenv("MLIT_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	return cliOptions{
		configPath:  path,
		envFile:     envFile,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// startToolServer 按“缓存 → 上游 http.Client → MLIT client → 工具 → 后台清理 → stdio 服务”顺序组装，
// 所有工具共享同一个 MLIT client，直到 stdin 关闭或收到信号。
func startToolServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger, configPath string) error {
	jsonCache, err := cache.NewMemoryCache(cfg.Cache.JSONCacheSize, cfg.Cache.JSONCacheTTL.DurationValue(), cache.MonotonicClock)
	if err != nil {
		return fmt.Errorf("初始化内存缓存失败: %w", err)
	}
	fileCache, err := cache.NewFileCache(cache.FileCacheOptions{
		Directory: cfg.Cache.CacheDir,
		TTL:       cfg.Cache.FileCacheTTL.DurationValue(),
		Clock:     cache.MonotonicClock,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("初始化文件缓存失败: %w", err)
	}

	client, err := mlit.NewClient(mlit.Options{
		BaseURL:      cfg.Upstream.BaseURL,
		APIKey:       cfg.Upstream.APIKey,
		APIKeyHeader: cfg.Upstream.APIKeyHeader,
		HTTPClient:   server.NewUpstreamClient(cfg),
		JSONCache:    jsonCache,
		FileCache:    fileCache,
		Logger:       logger,
		Retry: mlit.RetryPolicy{
			MaxAttempts:    cfg.Upstream.MaxAttempts,
			InitialBackoff: cfg.Upstream.InitialBackoff.DurationValue(),
			MaxBackoff:     cfg.Upstream.MaxBackoff.DurationValue(),
		},
		MaxConcurrency: cfg.Upstream.MaxConcurrency,
		DedupeInflight: cfg.Upstream.DedupeInflight,
	})
	if err != nil {
		return fmt.Errorf("初始化 MLIT client 失败: %w", err)
	}

	resources := tools.NewResourceStore(fileCache.Dir())
	registry, err := tools.NewDefaultRegistry(client, client, resources)
	if err != nil {
		return fmt.Errorf("注册工具失败: %w", err)
	}

	if interval := cfg.Cache.PurgeInterval.DurationValue(); interval > 0 {
		cache.StartPurger(ctx, fileCache, interval, logger)
	}

	rpc, err := server.NewRPCServer(server.RPCOptions{
		Logger:    logger,
		Tools:     registry,
		Resources: resources,
		Name:      version.Name,
		Version:   version.Version,
	})
	if err != nil {
		return err
	}

	fields := logging.BaseFields("startup", configPath)
	fields["base_url"] = cfg.Upstream.BaseURL
	fields["cache_dir"] = fileCache.Dir()
	fields["tools"] = len(registry.List())
	fields["max_concurrency"] = cfg.Upstream.MaxConcurrency
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	start := time.Now()
	err = rpc.Serve(ctx, stdIn, stdOut)
	stats := client.Stats()
	logger.WithFields(logrus.Fields{
		"action":         "shutdown",
		"uptime":         time.Since(start).String(),
		"total_requests": stats.TotalRequests,
		"cache_hits":     stats.CacheHits,
		"cache_misses":   stats.CacheMisses,
		"api_errors":     stats.APIErrors,
	}).Info("服务退出")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
