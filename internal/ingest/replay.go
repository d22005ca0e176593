package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// StartReplay reads a JSONL capture file and feeds it through the same
// decode path as the live stream. With follow enabled it keeps the file
// open and picks up appended lines, tail-style.
func StartReplay(ctx context.Context, cfg *config.Manager, out chan<- model.Event, logger *slog.Logger) {
	current := cfg.Get().Ingest.Replay
	if !current.Enabled {
		if logger != nil {
			logger.Info("replay ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("replay ingest enabled", "path", current.Path, "follow", current.Follow)
	}
	go replayFile(ctx, current.Path, current.Follow, out, logger)
}

func replayFile(ctx context.Context, path string, follow bool, out chan<- model.Event, logger *slog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		if logger != nil {
			logger.Error("replay open failed", "path", path, "err", err)
		}
		return
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line, err := reader.ReadBytes('\n')
		if len(line) > 1 {
			ev, decErr := Decode(line)
			if decErr != nil {
				if logger != nil {
					logger.Warn("replay decode error", "path", path, "err", decErr)
				}
			} else {
				ev.Source = "replay"
				SendNonBlocking(ctx, out, ev, logger)
			}
		}
		if err != nil {
			if err != io.EOF {
				if logger != nil {
					logger.Warn("replay read error", "path", path, "err", err)
				}
				return
			}
			if !follow {
				if logger != nil {
					logger.Info("replay finished", "path", path)
				}
				return
			}
			if !BackoffSleep(ctx, 200*time.Millisecond) {
				return
			}
		}
	}
}
