// tidetail subscribes to tidewatch broadcast channels over Redis PUB/SUB
// and prints every payload. Useful for watching what subscribers would see
// without wiring up a WebSocket client.
//
// Usage:
//
//	tidetail [-addr localhost:6379] [-prefix tidewatch:] CHANNEL [CHANNEL...]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tidewatch-io/tidewatch/internal/transport/redispub"
)

func main() {
	addr := flag.String("addr", "localhost:6379", "redis address")
	prefix := flag.String("prefix", redispub.DefaultPrefix, "channel prefix the server publishes under")
	flag.Parse()

	channels := flag.Args()
	if len(channels) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tidetail [-addr host:port] [-prefix p] CHANNEL [CHANNEL...]")
		os.Exit(2)
	}

	full := make([]string, len(channels))
	for i, c := range channels {
		full[i] = *prefix + c
	}

	client := redis.NewClient(&redis.Options{Addr: *addr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to redis at %s: %v\n", *addr, err)
		os.Exit(1)
	}

	sub := client.Subscribe(ctx, full...)
	defer sub.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		sub.Close()
	}()

	log.Printf("tidetail: listening on %d channel(s) via %s", len(full), *addr)

	for msg := range sub.Channel() {
		fmt.Printf("%s  %s  %s\n", time.Now().UTC().Format(time.RFC3339), msg.Channel, msg.Payload)
	}
}
