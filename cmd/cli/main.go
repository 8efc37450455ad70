package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/keshon/server-miyabi/internal/app"
	"github.com/keshon/server-miyabi/internal/chat"
	"github.com/keshon/server-miyabi/internal/config"
)

type session struct {
	chatID string
	userID string
	name   string
	group  bool
}

type handler interface {
	Handle(ctx context.Context, in chat.Inbound) (string, error)
}

func main() {
	var s session
	flag.StringVar(&s.chatID, "chat", "cli", "conversation ID")
	flag.StringVar(&s.userID, "user", "cli-user", "sender ID (use CREATOR_ID to act as the creator)")
	flag.StringVar(&s.name, "name", "you", "sender display name")
	flag.BoolVar(&s.group, "group", false, "treat the conversation as a group chat")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}
	a, err := app.New(cfg, nil)
	if err != nil {
		log.Fatal(err)
	}
	a.Start()

	fmt.Fprintf(os.Stderr, "%s is listening. Ctrl-D to quit.\n", cfg.AgentName)
	if err := run(ctx, os.Stdin, os.Stdout, a.Handler, s, cfg.AgentName); err != nil {
		log.Println("[ERR]", err)
	}
	if err := a.Close(); err != nil {
		log.Println("[ERR] Close:", err)
	}
}

// run reads one message per line and prints each non-empty reply.
func run(ctx context.Context, in io.Reader, out io.Writer, h handler, s session, agent string) error {
	sc := bufio.NewScanner(in)
	seq := 0
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		seq++
		msg := chat.Inbound{
			ID:             s.chatID + "-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.Itoa(seq),
			ConversationID: s.chatID,
			SenderID:       s.userID,
			SenderName:     s.name,
			Text:           sc.Text(),
			IsGroup:        s.group,
		}
		reply, err := h.Handle(ctx, msg)
		if err != nil {
			return err
		}
		if reply != "" {
			fmt.Fprintf(out, "%s: %s\n", agent, reply)
		}
	}
	return sc.Err()
}
