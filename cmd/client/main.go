package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/fasthttp/websocket"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"deskchat/gateway"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress  string `env:"DESKCHAT_SERVER_ADDR,default=localhost:8080"`
	ConversationID string `env:"DESKCHAT_CONVERSATION_ID,required=true"`
	Token          string `env:"DESKCHAT_TOKEN,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the connection lifecycle, configuration loading, and the
// read/write loops over the gateway socket.
func run() (int, error) {
	_ = godotenv.Load()

	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the socket; the credential travels as connect metadata.
	url := fmt.Sprintf("ws://%s/ws?token=%s", config.ServerAddress, config.Token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("dial error: %w", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	// 3. Join the conversation before anything else.
	if err := writeEvent(conn, gateway.EventJoinConversation, gateway.JoinPayload{
		ConversationID: config.ConversationID,
	}); err != nil {
		return exitRuntime, fmt.Errorf("join error: %w", err)
	}
	log.Info("Joined conversation", "conversation", config.ConversationID)

	// 4. Print incoming events until the socket closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				log.Info("Connection closed", "error", err)
				return
			}
			render(frame)
		}
	}()

	// 5. Forward stdin lines as messages.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			content := scanner.Text()
			if content == "" {
				continue
			}
			err := writeEvent(conn, gateway.EventSendMessage, gateway.SendPayload{
				ConversationID: config.ConversationID,
				Content:        content,
			})
			if err != nil {
				log.Error("Send failed", "error", err)
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down client")
	case <-done:
	}
	return exitOK, nil
}

func writeEvent(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(gateway.Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func render(frame []byte) {
	var envelope gateway.Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		color.Red.Printf("?? %s\n", frame)
		return
	}
	switch envelope.Event {
	case gateway.EventReceiveMessage:
		var message gateway.MessagePayload
		if err := json.Unmarshal(envelope.Data, &message); err != nil {
			color.Red.Printf("?? %s\n", envelope.Data)
			return
		}
		color.Cyan.Printf("[%s] ", message.CreatedAt)
		color.Bold.Printf("%s: ", message.Sender)
		fmt.Println(message.Content)
	case gateway.EventError:
		var payload gateway.ErrorPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			color.Red.Printf("?? %s\n", envelope.Data)
			return
		}
		color.Red.Printf("error: %s\n", payload.Error.Message)
	default:
		fmt.Printf("%s\n", frame)
	}
}
