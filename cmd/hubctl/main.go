// ABOUTME: Diagnostic CLI for talking to a hub without the TUI
// ABOUTME: Discovers hubs, lists players and queues, and checks stream resolution
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Sendspin/hubremote/internal/config"
	"github.com/Sendspin/hubremote/internal/discovery"
	"github.com/Sendspin/hubremote/internal/secrets"
	"github.com/Sendspin/hubremote/internal/stream"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", config.DefaultPath(), "Config file path")
	serverAddr = flag.String("server", "", "Hub address (default: from config)")
	token      = flag.String("token", "", "Auth token (default: from the secret store)")
	timeout    = flag.Duration("timeout", 15*time.Second, "Overall timeout")
	verbose    = flag.Bool("v", false, "Debug logging")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: hubctl [flags] <command> [args]

Commands:
  discover              browse the network for hubs
  providers             list login providers
  players               list players
  queue <queue_id>      show a queue and its first items
  resolve <queue_id>    find a playable stream for the queue's current item

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:], logger); err != nil {
		fmt.Fprintf(os.Stderr, "hubctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, logger *logrus.Logger) error {
	if command == "discover" {
		return discover(ctx, logger)
	}

	ep, err := endpoint()
	if err != nil {
		return err
	}
	client := protocol.NewHTTPClient(protocol.Config{Endpoint: ep, Logger: logger})

	switch command {
	case "providers":
		providers, err := client.ListAuthProviders(ctx)
		if err != nil {
			return err
		}
		return printJSON(providers)

	case "players":
		players, err := protocol.Execute[[]protocol.Player](ctx, client, protocol.CmdPlayersAll, nil)
		if err != nil {
			return err
		}
		for _, p := range players {
			fmt.Printf("%-32s %-24s %-8s available=%v\n", p.PlayerID, p.Label(), p.PlaybackState, p.Available)
		}
		return nil

	case "queue":
		if len(args) != 1 {
			return fmt.Errorf("queue needs a queue id")
		}
		q, err := protocol.ExecuteOptional[protocol.PlayerQueue](ctx, client, protocol.CmdQueueGet,
			protocol.Args{"queue_id": args[0]})
		if err != nil {
			return err
		}
		if q == nil {
			return fmt.Errorf("queue %s not found", args[0])
		}
		items, err := protocol.Execute[[]protocol.QueueItem](ctx, client, protocol.CmdQueueItems,
			protocol.Args{"queue_id": args[0], "limit": 20, "offset": 0})
		if err != nil {
			return err
		}
		fmt.Printf("%s  state=%s  shuffle=%v  repeat=%s  items=%d\n",
			q.QueueID, q.State, q.ShuffleEnabled, q.RepeatMode, q.Items)
		for i, item := range items {
			mark := " "
			if q.CurrentItem != nil && item.QueueItemID == q.CurrentItem.QueueItemID {
				mark = ">"
			}
			fmt.Printf("%s %3d  %s\n", mark, i+1, item.Name)
		}
		return nil

	case "resolve":
		if len(args) != 1 {
			return fmt.Errorf("resolve needs a queue id")
		}
		q, err := protocol.ExecuteOptional[protocol.PlayerQueue](ctx, client, protocol.CmdQueueGet,
			protocol.Args{"queue_id": args[0]})
		if err != nil {
			return err
		}
		if q == nil || q.CurrentItem == nil {
			return fmt.Errorf("queue %s has no current item", args[0])
		}
		resolver := stream.NewResolver(stream.Config{
			Endpoint: func() protocol.Endpoint { return ep },
			Logger:   logger,
		})
		url, err := resolver.Resolve(ctx, *q.CurrentItem)
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	}

	return fmt.Errorf("unknown command %q", command)
}

// endpoint combines flags with the saved config and token
func endpoint() (protocol.Endpoint, error) {
	base := *serverAddr
	if base == "" {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			return protocol.Endpoint{}, err
		}
		base = cfg.Server.URL
	}
	base, err := protocol.NormalizeBaseURL(base)
	if err != nil {
		return protocol.Endpoint{}, err
	}
	if base == "" {
		return protocol.Endpoint{}, fmt.Errorf("no hub address, pass -server or run discover")
	}

	tok := *token
	if tok == "" {
		store, err := secrets.NewFileStore(config.SecretsDir(*configPath))
		if err != nil {
			return protocol.Endpoint{}, err
		}
		if tok, err = secrets.NewTokenStore(store).Token(); err != nil {
			return protocol.Endpoint{}, err
		}
	}
	return protocol.Endpoint{BaseURL: base, Token: tok}, nil
}

func discover(ctx context.Context, logger *logrus.Logger) error {
	browser := discovery.NewBrowser(discovery.Config{Logger: logger})
	defer browser.Stop()

	servers, err := browser.Discover(ctx)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("No hubs found")
		return nil
	}
	for _, srv := range servers {
		fmt.Printf("%-24s %-32s version=%s\n", srv.Name, srv.BaseURL, srv.Version)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
