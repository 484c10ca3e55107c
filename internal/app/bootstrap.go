package app

import (
	"errors"
	"fmt"

	"github.com/veritag-api/internal/config"
	"github.com/veritag-api/internal/provider"
	"github.com/veritag-api/internal/router"
	"github.com/veritag-api/internal/worker"
)

// BuildRunner 按启动模式组装服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if !ValidMode(mode) {
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}

	container := provider.NewContainer(cfg)
	var services []Service

	if mode == ModeAll || mode == ModeAPI {
		services = append(services, buildAPIService(cfg, container))
	}
	if mode == ModeAll || mode == ModeWorker {
		workerService, err := buildWorkerService(cfg, container)
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	}
	return NewRunner(services...), nil
}

func buildAPIService(cfg *config.Config, container *provider.Container) *HTTPService {
	engine := router.SetupRouter(cfg, container)
	return NewHTTPService(cfg.Server.Host+":"+cfg.Server.Port, engine)
}

func buildWorkerService(cfg *config.Config, container *provider.Container) (*worker.Service, error) {
	consumer := worker.NewConsumer(container)
	return worker.NewService(&cfg.Queue, consumer)
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
