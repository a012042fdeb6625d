// Command jobsctl enqueues maintenance tasks by hand.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/autoservis/autoservis/internal/app"
	"github.com/autoservis/autoservis/jobs"
)

type enqueuer interface {
	EnqueueSessionSweep(ctx context.Context) (*asynq.TaskInfo, error)
	EnqueueStatsInvalidate(ctx context.Context) (*asynq.TaskInfo, error)
}

func main() {
	if app.InTestMode() {
		return
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	client := jobs.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := client.Close(); err != nil {
			slog.Default().Warn("client close", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run(ctx, os.Args[1:], client, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "jobsctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, q enqueuer, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: jobsctl sweep-sessions|invalidate-stats")
	}
	var (
		info *asynq.TaskInfo
		err  error
	)
	switch args[0] {
	case "sweep-sessions":
		info, err = q.EnqueueSessionSweep(ctx)
	case "invalidate-stats":
		info, err = q.EnqueueStatsInvalidate(ctx)
	default:
		return fmt.Errorf("unsupported job %q", args[0])
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return err
}
