// Command buildit-worker runs the worker side of the build pipeline: it
// heartbeats its resource profile to a coordinator, polls for work, and
// builds and reports on whatever it is offered.
package main

import (
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/buildit-project/buildit/internal/config"
	"github.com/buildit-project/buildit/internal/logging"
	"github.com/buildit-project/buildit/internal/workerrun"
	"github.com/distr1/distri"
)

func main() {
	cfg := config.WorkerConfigFromEnv()
	dev := flag.Bool("dev", os.Getenv("BUILDIT_DEV") != "", "enable human-friendly development logging")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	zlog, err := logging.New(*dev)
	if err != nil {
		log.Fatalf("constructing logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.Server == "" {
		zlog.Fatal("BUILDIT_WORKER_SERVER (or -server) must be set")
	}
	if cfg.Arch == "" {
		zlog.Fatal("BUILDIT_WORKER_ARCH (or -arch) must be set")
	}

	hostname, err := os.Hostname()
	if err != nil {
		zlog.Fatal("resolving hostname", zap.Error(err))
	}

	ctx, canc := distri.InterruptibleContext()
	defer canc()

	var uploader workerrun.LogUploader
	if u := workerrun.NewRsyncUploader(cfg.RsyncHost, "buildit-logs", cfg.UploadSSHKeyPath); u != nil {
		uploader = u
	}

	runner := workerrun.NewRunner(cfg, hostname, workerrun.ExecRunner{}, uploader, zlog)

	if sink, err := workerrun.DialWSLineSink(ctx, cfg.Server, hostname); err != nil {
		zlog.Warn("connecting live log socket, build output will not stream live", zap.Error(err))
	} else {
		runner.Sink = sink
		defer sink.Close()
	}

	go runner.HeartbeatLoop(ctx)
	runner.PollLoop(ctx)
}
