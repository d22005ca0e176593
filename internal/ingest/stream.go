package ingest

import (
	"bufio"
	"context"
	"log/slog"
	"net"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// StartStream connects to the TCP producer and feeds decoded events into
// out, reconnecting with backoff for as long as ctx lives.
func StartStream(ctx context.Context, cfg *config.Manager, out chan<- model.Event, logger *slog.Logger) {
	current := cfg.Get().Ingest.Stream
	if !current.Enabled {
		if logger != nil {
			logger.Info("stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("stream ingest enabled", "addr", current.Addr)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			conn, err := net.Dial("tcp", cfg.Get().Ingest.Stream.Addr)
			if err != nil {
				if logger != nil {
					logger.Warn("stream connect failed", "addr", current.Addr, "err", err)
				}
				if !BackoffSleep(ctx, cfg.Get().Ingest.Stream.ReconnectBackoff) {
					return
				}
				continue
			}
			if logger != nil {
				logger.Info("connected to stream producer", "addr", conn.RemoteAddr().String())
			}
			readStream(ctx, conn, out, logger)
			_ = conn.Close()
			if !BackoffSleep(ctx, cfg.Get().Ingest.Stream.ReconnectBackoff) {
				return
			}
		}
	}()
}

func readStream(ctx context.Context, conn net.Conn, out chan<- model.Event, logger *slog.Logger) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := Decode(line)
		if err != nil {
			if logger != nil {
				logger.Warn("stream decode error", "err", err)
			}
			continue
		}
		ev.Source = "stream"
		SendNonBlocking(ctx, out, ev, logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && logger != nil {
		logger.Warn("stream read error", "err", err)
	}
}
