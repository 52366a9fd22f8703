// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"admate-rag-go/internal/bootstrap"
	"admate-rag-go/internal/config"
	"admate-rag-go/internal/handler"
	"admate-rag-go/internal/model"
	"admate-rag-go/internal/service"
	"admate-rag-go/pkg/log"
)

// seedNamespace 用于从文件路径生成稳定的文档 ID，重复导入会覆盖同一文档。
var seedNamespace = uuid.MustParse("6f1c2a57-3a8e-4b7e-9a55-2f1f0f5c7d21")

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	seedDir := flag.String("seed", "initfile", "启动时导入的文档目录")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	holder := config.NewHolder(cfg)

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if err := holder.Watch(*configPath); err != nil {
		log.Warnf("配置热更新未启用: %v", err)
	}

	// 3. 初始化存储、模型客户端与服务
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	app, err := bootstrap.New(rootCtx, holder)
	if err != nil {
		log.Fatal("初始化服务失败", err)
	}
	defer app.Close()

	// 4. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if consumer := app.NewConsumer(); consumer != nil {
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(rootCtx); err != nil {
				log.Errorf("Kafka 消费者异常退出: %v", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	// 5. 导入 seed 目录中的文档，已导入的会被覆盖
	go initSeedFiles(rootCtx, *seedDir, app.DocumentService)

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(app.RouterDependencies())

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	timeout := holder.Current().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者并等待当前任务结束
	cancelRoot()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}

// initSeedFiles 扫描目录下的 .txt 与 .md 文件并提交索引（幂等）。
func initSeedFiles(ctx context.Context, dir string, docs service.DocumentService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("initSeedFiles: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if strings.TrimSpace(string(content)) == "" {
			log.Infof("initSeedFiles: 空文件跳过: %s", path)
			return nil
		}

		rel, _ := filepath.Rel(dir, path)
		req := service.IndexRequest{
			ID:    uuid.NewSHA1(seedNamespace, []byte(filepath.ToSlash(rel))).String(),
			Title: strings.TrimSuffix(info.Name(), filepath.Ext(info.Name())),
			Type:  model.DocumentTypeFile,
			Text:  string(content),
		}
		if _, err := docs.Submit(ctx, req); err != nil {
			log.Warnf("initSeedFiles: 提交失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("initSeedFiles: 导入完成并已触发向量化: %s", info.Name())
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
