// Command meridianctl is an operator tool for the background job queue:
// it triggers maintenance jobs on demand instead of waiting for their
// cron slot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/meridian-wms/meridian-wms/internal/app"
	"github.com/meridian-wms/meridian-wms/jobs"
)

func main() {
	var (
		redisAddr = flag.String("redis", "", "redis address (defaults to REDIS_ADDR)")
		job       = flag.String("job", "", "job to trigger: fifo-scan | idempotency-cleanup")
	)
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	addr := cfg.RedisAddr
	if *redisAddr != "" {
		addr = *redisAddr
	}

	client, err := jobs.NewCtl(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect redis:", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *job == "" {
		flag.Usage()
		os.Exit(2)
	}
	info, err := client.Trigger(ctx, *job, cfg.IdempotencyRetention)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trigger job:", err)
		os.Exit(1)
	}
	fmt.Printf("enqueued %s as task %s on queue %s\n", *job, info.ID, info.Queue)
}
