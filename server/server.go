package server

import (
	"net/http"
	"net/rpc"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/typeracer/broadcast"
	"github.com/wfunc/typeracer/config"
	"github.com/wfunc/typeracer/game"
	"github.com/wfunc/typeracer/logger"
	"github.com/wfunc/typeracer/monitor"
	"github.com/wfunc/typeracer/network"
	typeracer_rpc "github.com/wfunc/typeracer/rpc"
	"github.com/wfunc/typeracer/services"
	"github.com/wfunc/typeracer/session"
	"github.com/wfunc/typeracer/store"
	"github.com/wfunc/typeracer/textgen"
)

// GameServer accepts websocket connections, authenticates the handshake and
// pumps decoded envelopes into the orchestrator.
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	cfg            *config.Config
	store          *store.Store
	sessionManager *session.Manager
	broadcaster    *broadcast.Manager
	orchestrator   *game.Orchestrator
	rpcServer      *typeracer_rpc.Server
	monitor        *monitor.Monitor
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, history *services.ResultsService, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:           cfg.Server.HTTPAddress,
		cfg:            cfg,
		sessionManager: session.NewManager(),
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.broadcaster = broadcast.NewManager(s.sessionManager)

	generator := textgen.NewGenerator()
	s.store = store.NewStore(store.Config{
		MaxRooms:       cfg.Game.MaxAllowedRooms,
		MaxChatHistory: cfg.Game.MaxChatHistory,
	}, s.broadcaster, generator.Paragraph)

	s.orchestrator = game.NewOrchestrator(s.store, s.broadcaster, cfg.Game)
	if mon != nil {
		s.orchestrator.SetMonitor(mon)
	}
	if history != nil {
		s.orchestrator.SetResultsService(history)
	}

	rpcServer, err := typeracer_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	adminService := typeracer_rpc.NewAdminService(s.store, s.sessionManager)
	rpc.Register(adminService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

// Shutdown notifies every connected client, then closes their connections so
// the blocked read loops unwind.
func (s *GameServer) Shutdown() {
	s.broadcaster.BroadcastError(network.ErrNameServerShutdown, "server is shutting down")
	close(s.shutdownChan)
	for _, sess := range s.sessionManager.All() {
		if err := sess.Close(); err != nil {
			logger.Log.Debugf("closing session %s failed: %v", sess.ID, err)
		}
	}
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	avatar := r.URL.Query().Get("avatar")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}
	if len(username) > s.cfg.Game.MaxUsernameLength {
		http.Error(w, "username is too long", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, username, avatar)
}

type userInfoPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

func (s *GameServer) handleConnection(conn *websocket.Conn, username, avatar string) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	sess.UserID = uuid.New().String()
	sess.Username = username
	sess.Avatar = avatar

	s.sessionManager.Add(sess)
	s.store.AddUser(sess.UserID, username, avatar)
	if s.monitor != nil {
		s.monitor.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s, user: %s",
		wsConn.RemoteAddr(), sess.GetID(), username)

	// The client learns its server-assigned identity before anything else.
	if err := sess.Send(network.EventSendUserInfo, userInfoPayload{
		UserID:   sess.UserID,
		Username: username,
		Avatar:   avatar,
	}); err != nil {
		logger.Log.Warnf("send_user_info to session %s failed: %v", sess.GetID(), err)
	}

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.orchestrator.HandleDisconnect(sess)
		s.sessionManager.Remove(sess.GetID())
		if s.monitor != nil {
			s.monitor.DecOnlinePlayers()
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			env, err := wsConn.ReadEnvelope()
			if err != nil {
				return
			}
			s.orchestrator.HandleEnvelope(sess, env)
		}
	}
}
