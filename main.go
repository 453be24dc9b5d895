package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	apihttp "wplace/painter/api/http"
	"wplace/painter/log"
	"wplace/painter/model"
	"wplace/painter/page"
	"wplace/painter/service"
	"wplace/painter/system"
	"wplace/painter/thirdpart"
	"wplace/painter/tools"
)

// 账号循环错峰启动间隔，避免请求齐射
const accountStagger = 30 * time.Second

func main() {
	configPath := flag.String("config", "data/config.yaml", "config file path")
	flag.Parse()

	if err := system.Init(*configPath); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := system.GetConfig()
	log.Setup(cfg.LogLevel, cfg.LogFile)

	if err := thirdpart.Configure(cfg.Proxy); err != nil {
		log.Fatalf("configure http client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warnf("received %s, shutting down", sig)
		cancel()
	}()

	assembler := service.NewSnapshotAssembler()
	openActuator := func(ctx context.Context, creds system.Credentials, coord model.PixelCoords) (service.Actuator, error) {
		return page.Open(ctx, cfg.Browser, creds, coord, page.Zoom15)
	}

	var wg sync.WaitGroup
	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		sched := service.NewScheduler(acct, assembler, openActuator)
		service.RegisterScheduler(sched)

		wg.Add(1)
		go func(delay time.Duration) {
			defer wg.Done()
			if !tools.SleepCtx(ctx.Done(), delay) {
				return
			}
			sched.Run(ctx)
		}(time.Duration(i) * accountStagger)
	}

	apihttp.Serve(cfg.Listen)

	wg.Wait()
	log.Infof("all paint loops stopped, bye")
}
