// SecureChat CLI - Command line client for SecureChat
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kestrelvaluation/securechat/clients/go/securechat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("SECURECHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := os.Getenv("SECURECHAT_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "SECURECHAT_TOKEN is required")
		os.Exit(1)
	}

	client := securechat.New(baseURL, token)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "rooms":
		rooms, err := client.Rooms(ctx)
		exitOnError(err)
		for _, r := range rooms {
			label := r.CaseName
			if label == "" {
				label = "direct"
			}
			fmt.Printf("  %s  %s  %q\n", r.ID, label, r.LastMessage)
		}

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: securechat read <room_id>")
			os.Exit(1)
		}
		msgs, err := client.Messages(ctx, os.Args[2])
		exitOnError(err)
		for _, msg := range msgs {
			ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, msg.SenderName, msg.PreviewText(80))
		}
		exitOnError(client.OpenRoom(ctx, os.Args[2]))

	case "dm":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: securechat dm <peer_id> <message>")
			os.Exit(1)
		}
		room, err := client.ResolveDirectRoom(ctx, os.Args[2], "")
		exitOnError(err)
		sendOrReport(ctx, client, room.ID, os.Args[3])

	case "post":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: securechat post <room_id> <message>")
			os.Exit(1)
		}
		sendOrReport(ctx, client, os.Args[2], os.Args[3])

	case "case":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: securechat case <case_id> [case_name]")
			os.Exit(1)
		}
		name := ""
		if len(os.Args) > 3 {
			name = os.Args[3]
		}
		room, err := client.ResolveCaseRoom(ctx, os.Args[2], name)
		exitOnError(err)
		fmt.Printf("Room: %s\n", room.ID)

	case "heartbeat":
		exitOnError(client.Heartbeat(ctx))
		fmt.Println("ok")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func sendOrReport(ctx context.Context, client *securechat.Client, roomID, text string) {
	tag, msg, err := client.SendText(ctx, roomID, text, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Send failed (kept as %s): %v\n", tag, err)
		os.Exit(1)
	}
	fmt.Printf("Sent: %s\n", msg.ID)
}

func usage() {
	fmt.Println(`SecureChat CLI - internal messaging client

Usage: securechat <command> [options]

Commands:
  rooms                     List your rooms
  read <room_id>            Read a room and mark it read
  dm <peer_id> <message>    Message a colleague directly
  post <room_id> <message>  Post to an existing room
  case <case_id> [name]     Open the room for a valuation case
  heartbeat                 Record presence activity

Environment:
  SECURECHAT_URL    Server URL (default: http://localhost:8080)
  SECURECHAT_TOKEN  Bearer token (required)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
