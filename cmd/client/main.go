// volatile-chat CLI - minimal terminal client for the relay.
//
// Usage:
//
//	client <server-url> <identity> <peer>
//
// The shared password is read from VOLATILE_PASSWORD or prompted on stdin.
// Nothing is written to disk; closing the client forgets everything.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wapteam1/volatile-chat/clients/go/volatile"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Usage: client <server-url> <identity> <peer>")
		os.Exit(1)
	}
	url, identity, peer := os.Args[1], os.Args[2], os.Args[3]

	password := os.Getenv("VOLATILE_PASSWORD")
	if password == "" {
		fmt.Print("shared password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to read password")
			os.Exit(1)
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "a non-empty password is required")
		os.Exit(1)
	}

	session := volatile.NewSession(url, identity, password, volatile.Events{
		OnConnect: func() {
			fmt.Printf("* connected as %s\n", identity)
		},
		OnMessage: func(msg volatile.Incoming) {
			ts := time.UnixMilli(msg.Timestamp).Format("15:04:05")
			if msg.Readable && msg.MediaType != volatile.MediaText {
				fmt.Printf("[%s] %s sent %s (%d bytes)\n", ts, msg.From, msg.MediaType, len(msg.Data))
				return
			}
			fmt.Printf("[%s] %s: %s\n", ts, msg.From, msg.Text)
		},
		OnLocalEcho: func(text string) {
			fmt.Printf("[%s] me: %s\n", time.Now().Format("15:04:05"), text)
		},
		OnSeen: func(messageID, seenBy string) {
			fmt.Printf("* %s has seen your message\n", seenBy)
		},
		OnAllSeen: func(seenBy string, count int) {
			fmt.Printf("* %s has seen %d of your messages\n", seenBy, count)
		},
		OnError: func(message string) {
			fmt.Printf("! server: %s\n", message)
		},
	})

	session.Start()
	defer session.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "/quit" {
			return
		}
		if err := session.Send(peer, text); err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
}
