// rpc/rpc.go
package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/typeracer/logger"
	"github.com/wfunc/typeracer/session"
	"github.com/wfunc/typeracer/store"
)

// Server manages the RPC listener for the admin surface.
type Server struct {
	listener net.Listener
	address  string
}

func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes live server state over net/rpc for operational
// tooling. Methods follow the net/rpc signature rules.
type AdminService struct {
	store    *store.Store
	sessions *session.Manager
}

func NewAdminService(st *store.Store, sessions *session.Manager) *AdminService {
	return &AdminService{store: st, sessions: sessions}
}

type ServerStatsArgs struct{}

type ServerStatsReply struct {
	Rooms       int
	Users       int
	Connections int
}

func (a *AdminService) GetServerStats(args *ServerStatsArgs, reply *ServerStatsReply) error {
	reply.Rooms = a.store.RoomCount()
	reply.Users = a.store.UserCount()
	reply.Connections = a.sessions.Count()
	return nil
}

type ListRoomsArgs struct{}

type RoomSummary struct {
	RoomID     string
	RoomType   string
	RoomStatus string
	Users      int
	MaxUsers   int
}

type ListRoomsReply struct {
	Rooms []RoomSummary
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, room := range a.store.Rooms() {
		reply.Rooms = append(reply.Rooms, RoomSummary{
			RoomID:     room.RoomID,
			RoomType:   string(room.RoomType),
			RoomStatus: string(room.RoomStatus),
			Users:      len(room.Users),
			MaxUsers:   room.MaxUsers,
		})
	}
	return nil
}
