package e2e

import (
	"chat-relay/auth"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, skipping end to end suite")
	}
}

// Connect opens an authenticated WebSocket for userID
func (s *BaseWsSuite) Connect(name, userID string) *websocket.Conn {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	token, err := auth.GenerateToken([]byte(s.Config.JwtSecret), userID, time.Hour)
	s.Require().NoError(err)

	u := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{
		"Authorization": {"Bearer " + token},
		"Origin":        {s.Config.Origin},
	})
	s.Require().NoError(err, "Failed to connect to relay at "+u.String())
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *BaseWsSuite) Send(conn *websocket.Conn, name string, data any) {
	payload, err := json.Marshal(data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(Frame{Event: name, Data: payload}))
}

// Receive reads frames until one named name arrives
func (s *BaseWsSuite) Receive(conn *websocket.Conn, name string) Frame {
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.Require().NoError(conn.SetReadDeadline(deadline))
		var f Frame
		s.Require().NoError(conn.ReadJSON(&f), "no %s frame before deadline", name)
		if s.Config.DebugJSON {
			s.T().Logf("FRAME %s: %s", f.Event, string(f.Data))
		}
		if f.Event == name {
			return f
		}
	}
}
