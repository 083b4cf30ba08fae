package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/abin98anto/skillforge-client/internal/api"
	"github.com/abin98anto/skillforge-client/internal/chatsync"
	"github.com/abin98anto/skillforge-client/internal/config"
	"github.com/abin98anto/skillforge-client/internal/models"
	"github.com/abin98anto/skillforge-client/internal/push"
	"github.com/abin98anto/skillforge-client/internal/session"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Token == "" {
		log.Fatal("SKILLFORGE_TOKEN is required")
	}

	// 2. Resolve the authenticated identity
	sess, err := session.FromToken(cfg.Token, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to read session token: %v", err)
	}

	// 3. Connect REST client and push channel
	client := api.NewClient(cfg.APIBaseURL, cfg.Token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel, err := push.Dial(ctx, cfg.WSURL, cfg.Token)
	if err != nil {
		log.Fatalf("Failed to connect push channel: %v", err)
	}
	defer channel.Close()

	// 4. Run the sync engine
	engine := chatsync.NewEngine(sess.UserID, client, channel, chatsync.Options{
		InviteTimeout:    cfg.InviteTimeout,
		PollInterval:     cfg.PollInterval,
		VideoCallBaseURL: cfg.VideoCallBaseURL,
	})
	go engine.Run(ctx)

	log.Printf("Connected as %s (%s)", sess.UserID, sess.Role)
	_ = engine.Expand()

	repl(engine)
}

func repl(engine *chatsync.Engine) {
	fmt.Println("commands: list | open <id> | send <text> | close | accept | decline | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, rest, _ := strings.Cut(line, " ")

		switch command {
		case "quit", "exit":
			return
		case "list":
			printConversations(engine)
		case "open":
			if rest == "" {
				fmt.Println("usage: open <conversation-id>")
				continue
			}
			if err := engine.OpenConversation(rest); err != nil {
				fmt.Println("open:", err)
				continue
			}
			printLog(engine)
		case "close":
			_ = engine.CloseConversation()
		case "send":
			view, err := engine.Snapshot()
			if err != nil {
				fmt.Println("send:", err)
				continue
			}
			if view.OpenConversationID == "" {
				fmt.Println("open a conversation first")
				continue
			}
			if err := engine.SendMessage(view.OpenConversationID, rest); err != nil {
				fmt.Println("send:", err)
			}
		case "accept":
			joinURL, err := engine.AcceptInvite()
			if err != nil {
				fmt.Println("accept:", err)
				continue
			}
			fmt.Println("join:", joinURL)
		case "decline":
			_ = engine.DeclineInvite()
		default:
			fmt.Println("unknown command:", command)
		}
	}
}

func printConversations(engine *chatsync.Engine) {
	view, err := engine.Snapshot()
	if err != nil {
		fmt.Println("list:", err)
		return
	}
	if view.Placeholder {
		fmt.Println("no conversations yet")
		return
	}
	for _, conversation := range view.Conversations {
		line := fmt.Sprintf("%s  course=%s  unread=%d", conversation.ID, conversation.CourseID, conversation.UnreadCount)
		if conversation.LastMessage != nil {
			line += fmt.Sprintf("  last=%q", conversation.LastMessage.Body)
		}
		fmt.Println(line)
	}
	fmt.Printf("total unread: %d\n", view.TotalUnread)
}

func printLog(engine *chatsync.Engine) {
	view, err := engine.Snapshot()
	if err != nil {
		fmt.Println("log:", err)
		return
	}
	for _, message := range view.Log {
		marker := " "
		if message.IsRead {
			marker = "✓"
		}
		fmt.Printf("[%s] %s %s: %s\n", models.FormatChatTimestamp(message.CreatedAt), marker, message.SenderID, message.Body)
	}
	if view.Invite != nil {
		fmt.Printf("incoming call from %s (room %s) - accept/decline\n", view.Invite.CallerID, view.Invite.RoomID)
	}
}
