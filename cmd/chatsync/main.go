/*
Package main is a terminal chat client built on the sync facade.

It bootstraps the session from an existing cookie, then reads commands
from stdin: /register, /login, /logout, /chats, /search, /start, /open,
/quit. Any other input line is sent as a message to the open chat. Pushed
messages and typing indicators for the open chat are printed as they
arrive.
*/
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatsync/internal/app/client"
	"chatsync/internal/configs"
	"chatsync/internal/model"
	"chatsync/internal/pkg/errs"
	"chatsync/internal/pkg/logx"
)

// searchDebounce is how long consecutive /search commands are coalesced,
// matching the contract that the caller debounces user search.
const searchDebounce = 500 * time.Millisecond

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")

	c, err := client.New(cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize client")
	}
	defer c.Close()

	ctx := context.Background()
	c.Bootstrap(ctx)

	if s := c.Session(); s != nil {
		fmt.Printf("signed in as %s\n", s.Username)
	} else {
		fmt.Println("not signed in; use /login or /register")
	}

	app := &app{client: c}

	app.unsubs = append(app.unsubs,
		c.OnSessionChange(func(s *model.Session) {
			if s != nil {
				fmt.Printf("* signed in as %s\n", s.Username)
			} else {
				fmt.Println("* signed out")
			}
		}),
		c.OnTimelineChange(app.printNewMessages),
		c.OnTypingChange(func(chatID string, isTyping bool) {
			if chatID != c.ActiveChat() {
				return
			}
			if isTyping {
				fmt.Printf("* %s is typing...\n", c.DisplayName(chatID))
			}
		}),
	)

	app.run(ctx)
}

type app struct {
	client *client.Client
	unsubs []func()

	// printed tracks how many messages per chat were already shown.
	mu      sync.Mutex
	printed map[string]int

	// pendingSearch coalesces rapid /search commands.
	searchTimer *time.Timer
}

func (a *app) run(ctx context.Context) {
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

		if line == "/quit" {
			return
		}

		a.handle(ctx, line)
	}
}

func (a *app) handle(ctx context.Context, line string) {
	if !strings.HasPrefix(line, "/") {
		a.send(ctx, line)
		return
	}

	fields := strings.Fields(line)

	switch fields[0] {
	case "/register":
		if len(fields) != 4 {
			fmt.Println("usage: /register <username> <email> <password>")
			return
		}
		if err := a.client.Register(ctx, fields[1], fields[2], fields[3]); err != nil {
			fmt.Println("registration failed:", errs.UserMessage(err))
		}

	case "/login":
		if len(fields) != 3 {
			fmt.Println("usage: /login <identifier> <password>")
			return
		}
		if err := a.client.Login(ctx, fields[1], fields[2]); err != nil {
			fmt.Println("login failed:", errs.UserMessage(err))
		}

	case "/logout":
		a.client.Logout(ctx)

	case "/chats":
		chats := a.client.Chats()
		if len(chats) == 0 {
			fmt.Println("no chats yet; use /search and /start")
			return
		}
		for i, chat := range chats {
			line := fmt.Sprintf("%d. %s", i+1, a.client.DisplayName(chat.ID))
			if chat.LatestMessage != nil {
				line += fmt.Sprintf("  (%s: %s)", chat.LatestMessage.SenderUsername, chat.LatestMessage.Content)
			}
			fmt.Println(line)
		}

	case "/search":
		if len(fields) < 2 {
			fmt.Println("usage: /search <query>")
			return
		}
		a.search(ctx, strings.Join(fields[1:], " "))

	case "/start":
		if len(fields) != 2 {
			fmt.Println("usage: /start <user-id>")
			return
		}
		chat, err := a.client.StartChat(ctx, fields[1])
		if err != nil {
			fmt.Println("could not start chat:", errs.UserMessage(err))
			return
		}
		fmt.Printf("chat with %s is open\n", a.client.DisplayName(chat.ID))

	case "/open":
		if len(fields) != 2 {
			fmt.Println("usage: /open <number from /chats>")
			return
		}
		a.open(ctx, fields[1])

	default:
		fmt.Println("unknown command:", fields[0])
	}
}

// search coalesces rapid queries, firing only the last one after the
// debounce window.
func (a *app) search(ctx context.Context, query string) {
	a.mu.Lock()
	if a.searchTimer != nil {
		a.searchTimer.Stop()
	}
	a.searchTimer = time.AfterFunc(searchDebounce, func() {
		users, err := a.client.SearchUsers(ctx, query)
		if err != nil {
			fmt.Println("search failed:", errs.UserMessage(err))
			return
		}
		if len(users) == 0 {
			fmt.Println("no users found")
			return
		}
		for _, u := range users {
			fmt.Printf("%s  (%s)\n", u.Username, u.ID)
		}
	})
	a.mu.Unlock()
}

func (a *app) open(ctx context.Context, arg string) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Println("usage: /open <number from /chats>")
		return
	}

	chats := a.client.Chats()
	if index < 1 || index > len(chats) {
		fmt.Println("no such chat; run /chats first")
		return
	}

	chat := chats[index-1]
	if err := a.client.SelectChat(ctx, chat.ID); err != nil {
		fmt.Println("could not load history:", errs.UserMessage(err))
	}

	a.mu.Lock()
	if a.printed == nil {
		a.printed = make(map[string]int)
	}
	a.printed[chat.ID] = 0
	a.mu.Unlock()

	fmt.Printf("-- %s --\n", a.client.DisplayName(chat.ID))
	a.printNewMessages(chat.ID)
}

func (a *app) send(ctx context.Context, content string) {
	chatID := a.client.ActiveChat()
	if chatID == "" {
		fmt.Println("open a chat first (/chats then /open <n>)")
		return
	}

	a.client.Typed(chatID)

	if _, err := a.client.SendMessage(ctx, chatID, content); err != nil {
		fmt.Println("send failed:", errs.UserMessage(err))
	}
}

// printNewMessages prints any messages of the active chat not yet shown.
func (a *app) printNewMessages(chatID string) {
	if chatID != a.client.ActiveChat() {
		return
	}

	messages := a.client.Messages(chatID)

	a.mu.Lock()
	if a.printed == nil {
		a.printed = make(map[string]int)
	}
	start := a.printed[chatID]
	if start > len(messages) {
		start = 0
	}
	a.printed[chatID] = len(messages)
	a.mu.Unlock()

	for _, msg := range messages[start:] {
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.SenderUsername, msg.Content)
	}
}
