package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/pkg/protocol"
)

func chatCmd() *cobra.Command {
	var (
		addr           string
		conversationID string
		message        string
		stream         bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the gateway from the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				message = args[0]
			}
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if addr == "" {
				host := cfg.Gateway.Host
				if host == "0.0.0.0" || host == "" {
					host = "127.0.0.1"
				}
				addr = fmt.Sprintf("%s:%d", host, cfg.Gateway.Port)
			}
			if conversationID == "" {
				conversationID = "cli-" + uuid.NewString()[:8]
			}
			return runChat(cmd.Context(), cfg, addr, conversationID, message, stream)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "gateway address (default from config)")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (default: fresh)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream partial output")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, addr, conversationID, message string, stream bool) error {
	wsURL := fmt.Sprintf("ws://%s/ws", addr)

	opts := &websocket.DialOptions{}
	if cfg.Gateway.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + cfg.Gateway.Token}}
	}
	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return fmt.Errorf("connect to gateway at %s: %w", addr, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 20)

	join := protocol.ClientFrame{Type: protocol.FrameJoin, ConversationID: conversationID}
	if err := wsjson.Write(ctx, conn, join); err != nil {
		return fmt.Errorf("join conversation: %w", err)
	}

	if message != "" {
		return chatOnce(ctx, conn, conversationID, message, stream)
	}

	fmt.Fprintf(os.Stderr, "Conductor chat (conversation: %s)\n", conversationID)
	fmt.Fprintln(os.Stderr, `Type "exit" to quit`)
	fmt.Fprintln(os.Stderr)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}
		if err := chatOnce(ctx, conn, conversationID, input, stream); err != nil {
			return err
		}
	}
}

// chatOnce sends one chat frame and prints messages until the final
// response (or an error) arrives.
func chatOnce(ctx context.Context, conn *websocket.Conn, conversationID, content string, stream bool) error {
	frame := protocol.ClientFrame{
		Type:           protocol.FrameChat,
		ConversationID: conversationID,
		Content:        content,
		Stream:         stream,
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	streaming := false
	for {
		var msg protocol.ChannelMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case protocol.TypeThinking:
			fmt.Fprintf(os.Stderr, "… %s\n", msg.Content)

		case protocol.TypeStreamChunk:
			if !streaming {
				fmt.Printf("%s: ", displayName(msg.AgentName))
				streaming = true
			}
			fmt.Print(msg.Content)

		case protocol.TypeAgentResponse:
			if streaming {
				// Chunks already printed the content.
				fmt.Println()
			} else {
				fmt.Printf("%s: %s\n", displayName(msg.AgentName), msg.Content)
			}
			return nil

		case protocol.TypeError:
			if streaming {
				fmt.Println()
			}
			return errors.New(msg.Content)
		}
	}
}

func displayName(agentName string) string {
	if agentName == "" {
		return "Agent"
	}
	return agentName
}
