package main

import (
	"bufio"
	"context"
	pb "dm-lab/api/chat"
	"dm-lab/domain"
	"dm-lab/infrastructure/rest"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gookit/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const historyCommand = "/history "

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "client error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if !cfg.Colours {
		color.Disable()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Token over REST
	api := rest.NewClient(cfg.HttpURL, cfg.Timeout)
	token, err := api.LoginOrRegister(cfg.Username, cfg.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	// 2. Live channel
	conn, err := grpc.NewClient(cfg.ServerAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.ServerAddr, err)
	}
	defer conn.Close()

	streamCtx := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	stream, err := pb.NewChatServiceClient(conn).Connect(streamCtx)
	if err != nil {
		return fmt.Errorf("failed to open live channel: %w", err)
	}
	if err := stream.Send(&pb.ClientEvent{Join: &pb.JoinEvent{Identity: cfg.Username}}); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- receive(stream) }()
	go readInput(ctx, api, stream, cfg.Username)

	select {
	case <-ctx.Done():
		_ = stream.CloseSend()
		return nil
	case err := <-done:
		return err
	}
}

// receive prints server events until the stream ends.
func receive(stream grpc.BidiStreamingClient[pb.ClientEvent, pb.ServerEvent]) error {
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case evt.Joined != nil:
			color.Green.Printf("joined as %s (%s)\n", evt.Joined.Identity, evt.Joined.ConnectionId)
		case evt.Deliver != nil:
			fmt.Println(formatMessage(evt.Deliver.ToDomain()))
		case evt.Sent != nil:
			color.Gray.Printf("sent #%d to %s\n", evt.Sent.Sequence, evt.Sent.Recipient)
		case evt.Error != nil:
			color.Red.Printf("error %d: %s\n", evt.Error.Code, evt.Error.Reason)
		}
	}
}

// readInput turns "recipient: text" lines into sends and "/history user" into a history read.
func readInput(ctx context.Context, api *rest.Client, stream grpc.BidiStreamingClient[pb.ClientEvent, pb.ServerEvent], self string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if partner, ok := strings.CutPrefix(line, historyCommand); ok {
			printHistory(api, self, strings.TrimSpace(partner))
			continue
		}

		recipient, content, ok := strings.Cut(line, ":")
		if !ok {
			color.Yellow.Println("usage: <recipient>: <text> or /history <user>")
			continue
		}
		if err := stream.Send(&pb.ClientEvent{Send: &pb.SendEvent{
			Recipient: strings.TrimSpace(recipient),
			Content:   strings.TrimSpace(content),
		}}); err != nil {
			color.Red.Printf("send failed: %v\n", err)
			return
		}
	}
	_ = stream.CloseSend()
}

func printHistory(api *rest.Client, self, partner string) {
	messages, err := api.History(self, partner)
	if err != nil {
		color.Red.Printf("history failed: %v\n", err)
		return
	}
	color.Cyan.Printf("--- %s / %s (%d) ---\n", self, partner, len(messages))
	for _, m := range messages {
		fmt.Println(formatMessage(domain.Message{
			Sender:    m.Sender,
			Recipient: m.Recipient,
			Content:   m.Content,
			Sequence:  m.Sequence,
			CreatedAt: m.CreatedAt,
		}))
	}
}

func formatMessage(m domain.Message) string {
	return fmt.Sprintf("%s %s %s %s",
		color.Gray.Sprint(m.CreatedAt.Local().Format("15:04:05")),
		color.Gray.Sprintf("#%d", m.Sequence),
		color.Bold.Sprint(m.Sender+":"),
		m.Content)
}
