// Command wsfetch is a one-shot fetch client: given a single URL, it dials
// it and prints what comes back. A "ws://" or "wss://" URL gets a WebSocket
// handshake, after which every line read from stdin is sent as a text
// message and every message received is printed, until stdin hits EOF. Any
// other URL is sent as a plain HTTP GET, and the response body is printed.
//
// Grounded on the original chat client (wsclient.py) and crawler
// (crawl.py): a thin demonstration of the library, not a reimplementation
// of their full convenience surface.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	httpclient "github.com/halprin/httpwire/pkg/http/client"
	"github.com/halprin/httpwire/pkg/websocket"
)

func main() {
	cmd := &cli.Command{
		Name:      "wsfetch",
		Usage:     "fetch a single HTTP or WebSocket URL",
		ArgsUsage: "<url>",
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	url := cmd.Args().First()
	if url == "" {
		return fmt.Errorf("missing URL argument")
	}

	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return chat(ctx, url)
	}
	return fetch(ctx, url)
}

// fetch performs a plain HTTP GET and prints the response body, mirroring
// the original crawler's single-page fetch.
func fetch(ctx context.Context, url string) error {
	body, _, err := httpclient.HTTPRequest(ctx, "GET", url, "", "*/*", "", nil)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(body)
	return err
}

// chat dials a WebSocket URL, relays stdin lines to the server as text
// messages, and prints every message received, until stdin reaches EOF or
// the connection closes. Mirrors the original chat client's rstream/wstream
// pair, collapsed onto this library's channel-based [websocket.Conn] API.
func chat(parent context.Context, url string) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := websocket.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}
	fmt.Fprintln(os.Stderr, "Connected.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range conn.IncomingMessages() {
			fmt.Println(string(msg.Data))
		}
	}()

	stdinDone := make(chan struct{})
	go func() {
		defer close(stdinDone)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := <-conn.SendTextMessage(scanner.Bytes()); err != nil {
				fmt.Fprintf(os.Stderr, "send error: %v\n", err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-stdinDone:
	case <-ctx.Done():
	}
	return nil
}
