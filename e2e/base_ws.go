package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"

	"deskchat/auth"
	"deskchat/domain"
	"deskchat/gateway"
	"deskchat/repositories"
	"deskchat/runtime"
	"deskchat/services"
)

const readTimeout = 3 * time.Second

// BaseWsSuite boots the whole stack in-process (badger on a temp dir,
// orchestrator, fiber gateway on a loopback port) unless SERVER_ADDR
// points at a running instance.
type BaseWsSuite struct {
	suite.Suite
	Config Config

	addr      string
	secret    []byte
	directory repositories.IConversationRepository

	db           *badger.DB
	app          *fiber.App
	cancel       context.CancelFunc
	orchestrator *runtime.Orchestrator
}

func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "e2e-secret"
	}
	s.secret = []byte(secret)

	if s.Config.ServerAddr != "" {
		s.addr = s.Config.ServerAddr
		return
	}
	s.bootInProcess()
}

func (s *BaseWsSuite) TearDownSuite() {
	if s.app != nil {
		_ = s.app.Shutdown()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.orchestrator != nil {
		s.orchestrator.Stop()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *BaseWsSuite) bootInProcess() {
	logger := logs.GetLoggerFromString("ERROR")

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).
		WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.db = db

	messages := repositories.NewMessageRepository(db, logger, nil)
	conversations := repositories.NewConversationRepository(db)
	s.directory = conversations

	supervisor := runtime.NewSupervisor(logger)
	orchestrator := runtime.NewOrchestrator(logger, supervisor,
		runtime.NewRegistry(), conversations, messages, 16)
	service := services.NewMessagingService(orchestrator, conversations, messages, 2048)
	handler := gateway.NewHandler(logger, auth.NewVerifier(s.secret), service, 16, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.orchestrator = orchestrator
	orchestrator.Start(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.Register(app)
	s.app = app

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.addr = listener.Addr().String()
	go func() {
		_ = app.Listener(listener)
	}()
}

// Mint issues a credential the gateway under test will accept.
func (s *BaseWsSuite) Mint(identity domain.Identity) string {
	token, err := auth.GenerateToken(s.secret, identity, time.Hour)
	s.Require().NoError(err)
	return token
}

// SeedConversation writes a conversation straight into the store.
func (s *BaseWsSuite) SeedConversation(id domain.ConversationID, ticketID string, participants ...string) {
	s.Require().NotNil(s.directory, "seeding requires the in-process stack")
	err := s.directory.Create(domain.Conversation{
		ID:             id,
		TicketID:       ticketID,
		ParticipantIDs: participants,
	})
	s.Require().NoError(err)
}

// Dial opens a client connection with a colorized header in the logs
func (s *BaseWsSuite) Dial(t *testing.T, name string, token string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	url := fmt.Sprintf("ws://%s/ws?token=%s", s.addr, token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func (s *BaseWsSuite) SendEvent(conn *websocket.Conn, event string, payload any) {
	data, err := json.Marshal(payload)
	s.Require().NoError(err)
	frame, err := json.Marshal(gateway.Envelope{Event: event, Data: data})
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf(">> %s", frame)
	}
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, frame))
}

// ExpectEvent blocks until the next frame arrives and checks its event name.
func (s *BaseWsSuite) ExpectEvent(conn *websocket.Conn, event string) json.RawMessage {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, frame, err := conn.ReadMessage()
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf("<< %s", frame)
	}
	var envelope gateway.Envelope
	s.Require().NoError(json.Unmarshal(frame, &envelope))
	s.Require().Equal(event, envelope.Event)
	return envelope.Data
}

// FetchHistory reads the HTTP history surface with a Bearer credential.
func (s *BaseWsSuite) FetchHistory(conversationID domain.ConversationID, token string) []gateway.MessagePayload {
	url := fmt.Sprintf("http://%s/api/conversations/%s/messages", s.addr, conversationID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var page struct {
		Messages []gateway.MessagePayload `json:"messages"`
		Cursor   *string                  `json:"cursor"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&page))
	return page.Messages
}

func dialRaw(url string) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(url, nil)
}
