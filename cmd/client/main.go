// Command client is a terminal participant: it connects to a CodeRoom
// server, joins a room, and prints everything broadcast to it. Mostly a
// debugging aid, but it is also the reference consumer of the
// reconnection supervisor.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/CodeRoom/internal/client"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/api/ws/signal", "signal endpoint")
	room := flag.String("room", "main", "room to join")
	username := flag.String("name", "guest", "username")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup := client.NewSupervisor(client.Options{
		URL: *url,
		OnState: func(s client.State) {
			log.Info().Str("state", s.String()).Msg("session state")
		},
		OnEvent: func(data []byte) {
			fmt.Println(string(data))
		},
	})

	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Error().Err(err).Msg("session ended")
			cancel()
		}
	}()

	if err := sup.Join(*room, *username); err != nil {
		// Not connected yet; the identity is cached and replayed as soon
		// as the supervisor gets a connection up.
		log.Info().Str("room", *room).Msg("join queued")
	}

	// Each stdin line is relayed as a chat message.
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			text := sc.Text()
			if text == "" {
				continue
			}
			err := sup.Send(map[string]string{
				"type":   "chat-message",
				"roomId": *room,
				"text":   text,
			})
			if err != nil {
				log.Warn().Err(err).Msg("send failed")
			}
		}
	}()

	<-ctx.Done()
}
