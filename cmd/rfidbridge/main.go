package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/lisuiheng/rfid-bridge/core"
	"github.com/lisuiheng/rfid-bridge/logger"
	"github.com/lisuiheng/rfid-bridge/reader"
)

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "", "Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/rfidbridge/config.yaml)")
	opener := flag.String("opener", "", "URL of the POS application that launched the bridge")
	flag.Parse()

	// 加载配置
	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *opener != "" {
		cfg.Peer.OpenerURL = *opener
	}

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logger.Logger().Info("Shutting down rfid bridge")

	// 创建应用上下文
	bridge, err := core.NewBridge(cfg, core.Deps{}, logger.Logger())
	if err != nil {
		logger.Error("Failed to create bridge", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			logger.Error("Failed to close bridge", "error", err)
		}
	}()

	// 设置信号处理
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 启动主服务
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("Starting rfid bridge")
		if err := bridge.Run(ctx, newScanSource(cfg)); err != nil {
			logger.Error("Bridge runtime error", "error", err)
		}
	}()

	// 等待终止信号
	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig)
		cancel()
		<-done
	case <-done:
		logger.Info("Scan source finished, shutting down")
	}

	logger.Info("Service shutdown completed", "status", bridge.Status().State)
}

func newScanSource(cfg core.Config) core.ScanSource {
	if cfg.Reader.Source == "serial" {
		return reader.NewSerialSource(cfg.Reader.Serial.Port, cfg.Reader.Serial.BaudRate,
			logger.Logger().With("component", "reader.serial"))
	}
	return reader.NewLineSource(os.Stdin)
}

// initLogger 初始化日志系统
func initLogger(cfg core.Config) error {
	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: cfg.Logging.Outputs,
	}

	// 调试模式覆盖配置
	if cfg.Debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
	}

	if err := logger.Init(logCfg); err != nil {
		return err
	}
	logger.Debug("Debug mode enabled", "enabled", cfg.Debug)
	return nil
}
