// game/orchestrator.go
package game

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/typeracer/broadcast"
	"github.com/wfunc/typeracer/config"
	"github.com/wfunc/typeracer/logger"
	"github.com/wfunc/typeracer/models"
	"github.com/wfunc/typeracer/monitor"
	"github.com/wfunc/typeracer/network"
	"github.com/wfunc/typeracer/services"
	"github.com/wfunc/typeracer/session"
	"github.com/wfunc/typeracer/store"
)

// Orchestrator interprets client events, enforces host authorization, and
// drives each room through countdown -> race -> results.
type Orchestrator struct {
	store       *store.Store
	broadcaster *broadcast.Manager
	cfg         config.GameConfig
	monitor     *monitor.Monitor         // optional
	results     *services.ResultsService // optional

	progressMutex sync.Mutex
	progress      map[string]map[string]store.Progress // roomID -> userID -> latest
}

func NewOrchestrator(st *store.Store, b *broadcast.Manager, cfg config.GameConfig) *Orchestrator {
	return &Orchestrator{
		store:       st,
		broadcaster: b,
		cfg:         cfg,
		progress:    make(map[string]map[string]store.Progress),
	}
}

// SetMonitor attaches metrics collection.
func (o *Orchestrator) SetMonitor(m *monitor.Monitor) {
	o.monitor = m
}

// SetResultsService attaches race-history recording.
func (o *Orchestrator) SetResultsService(s *services.ResultsService) {
	o.results = s
}

// --- request/broadcast payloads ---

type roomRequest struct {
	RoomID string `json:"room_id"`
}

type hostRequest struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type sendMessageRequest struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type changeRoomTypeRequest struct {
	RoomID  string         `json:"room_id"`
	UserID  string         `json:"user_id"`
	NewType store.RoomType `json:"new_type"`
}

type changeMaxPlayersRequest struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	NewMax int    `json:"new_max"`
}

type sendProgressRequest struct {
	RoomID     string         `json:"room_id"`
	UserID     string         `json:"user_id"`
	Progress   store.Progress `json:"progress"`
	IsFinished bool           `json:"is_finished"`
}

type tickPayload struct {
	CurrentTick int `json:"current_tick"`
}

type userProgressPayload struct {
	UserID   string         `json:"user_id"`
	Progress store.Progress `json:"progress"`
}

type roomTypeChangedPayload struct {
	NewType store.RoomType `json:"new_type"`
}

type maxPlayersChangedPayload struct {
	NewMax int `json:"new_max"`
}

// --- dispatch ---

// HandleEnvelope routes one client event. Validation failures on acked
// events answer through the acknowledgement; broadcast-only events log and
// no-op.
func (o *Orchestrator) HandleEnvelope(sess *session.Session, env *network.Envelope) {
	start := time.Now()
	if o.monitor != nil {
		o.monitor.IncMessagesReceived()
		defer func() { o.monitor.ObserveMessageLatency(time.Since(start)) }()
	}

	switch env.Event {
	case network.EventCreateRoom:
		o.handleCreateRoom(sess, env.Seq)
	case network.EventJoinRoom:
		o.handleJoinRoom(sess, env)
	case network.EventLeaveRoom:
		o.handleLeaveRoom(sess, env)
	case network.EventRequestRoomInfo:
		o.handleRequestRoomInfo(sess, env)
	case network.EventRequestChats:
		o.handleRequestChats(sess, env)
	case network.EventSendMessage:
		o.handleSendMessage(sess, env)
	case network.EventChangeRoomType:
		o.handleChangeRoomType(sess, env)
	case network.EventChangeMaxPlayers:
		o.handleChangeMaxPlayers(sess, env)
	case network.EventStartGame:
		o.handleStartGame(sess, env)
	case network.EventBackToLobby:
		o.handleBackToLobby(sess, env)
	case network.EventSendProgress:
		o.handleSendProgress(sess, env)
	default:
		logger.Log.Infof("unknown event %q from session %s", env.Event, sess.ID)
	}
}

// HandleDisconnect treats an abrupt connection loss as an explicit leave of
// the occupied room, followed by user-record deletion.
func (o *Orchestrator) HandleDisconnect(sess *session.Session) {
	if roomID := sess.RoomID(); roomID != "" {
		o.leaveRoom(sess, roomID)
	}
	o.store.DeleteUser(sess.UserID)
	o.updateRoomGauge()
}

// --- room membership ---

func (o *Orchestrator) handleCreateRoom(sess *session.Session, seq uint32) {
	room, err := o.store.CreateRoom(sess, sess.UserID, store.RoomTypePrivate)
	if err != nil {
		o.emitNamedError(sess, err)
		o.ackError(sess, seq, err)
		return
	}
	o.updateRoomGauge()
	o.ack(sess, seq, StatusOK, room, "successfully created room")
}

func (o *Orchestrator) handleJoinRoom(sess *session.Session, env *network.Envelope) {
	var req roomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "malformed join_room request")
		return
	}

	var room *store.RoomSnapshot
	var err error
	if req.RoomID == "" {
		// No explicit room: public matchmaking.
		room, err = o.store.JoinNextAvailableRoom(sess, sess.UserID)
	} else {
		room, err = o.store.JoinRoom(sess, sess.UserID, req.RoomID)
	}
	if err != nil {
		o.emitNamedError(sess, err)
		o.ackError(sess, env.Seq, err)
		return
	}
	o.updateRoomGauge()
	o.ack(sess, env.Seq, StatusOK, room, "")
}

func (o *Orchestrator) handleLeaveRoom(sess *session.Session, env *network.Envelope) {
	var req roomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		logger.Log.Warnf("malformed leave_room request from session %s: %v", sess.ID, err)
		return
	}
	o.leaveRoom(sess, req.RoomID)
}

func (o *Orchestrator) leaveRoom(sess *session.Session, roomID string) {
	if err := o.store.LeaveRoom(sess, sess.UserID, roomID); err != nil {
		// No caller is waiting on a response; log and carry on.
		logger.Log.Warnf("user %s could not leave room %s: %v", sess.UserID, roomID, err)
		return
	}
	if _, exists := o.store.GetRoom(roomID); exists {
		o.dropUserProgress(roomID, sess.UserID)
	} else {
		o.dropRoomProgress(roomID)
	}
	o.updateRoomGauge()
}

func (o *Orchestrator) handleRequestRoomInfo(sess *session.Session, env *network.Envelope) {
	var req roomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "malformed request_room_info request")
		return
	}
	room, exists := o.store.GetRoom(req.RoomID)
	if !exists {
		o.ack(sess, env.Seq, StatusNotFound, nil, "room not found")
		return
	}
	o.ack(sess, env.Seq, StatusOK, room, "")
}

// --- chat ---

func (o *Orchestrator) handleRequestChats(sess *session.Session, env *network.Envelope) {
	var req roomRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "malformed request_chats_in_room request")
		return
	}
	o.ack(sess, env.Seq, StatusOK, o.store.Chats(req.RoomID), "")
}

func (o *Orchestrator) handleSendMessage(sess *session.Session, env *network.Envelope) {
	var req sendMessageRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "malformed send_message request")
		return
	}

	chat, err := o.store.AddChat(req.RoomID, req.UserID, req.Message)
	if err != nil {
		o.ackError(sess, env.Seq, err)
		return
	}
	o.ack(sess, env.Seq, StatusOK, chat, "")
	o.broadcaster.BroadcastToRoomExcept(req.RoomID, sess.ID, network.EventUserSentMessage, chat)
}

// --- host-only room settings ---

func (o *Orchestrator) handleChangeRoomType(sess *session.Session, env *network.Envelope) {
	var req changeRoomTypeRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || !req.NewType.Valid() {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "invalid room type")
		return
	}

	if !o.authorizeHost(sess, env.Seq, req.RoomID, req.UserID) {
		return
	}
	if err := o.store.SetRoomType(req.RoomID, req.NewType); err != nil {
		o.ackError(sess, env.Seq, err)
		return
	}
	o.broadcaster.BroadcastToRoomExcept(req.RoomID, sess.ID,
		network.EventRoomTypeChanged, roomTypeChangedPayload{NewType: req.NewType})
	o.ack(sess, env.Seq, StatusOK, nil, "successfully changed room type")
}

func (o *Orchestrator) handleChangeMaxPlayers(sess *session.Session, env *network.Envelope) {
	var req changeMaxPlayersRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "malformed change_max_players request")
		return
	}
	if req.NewMax < 2 {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "max players must be at least 2")
		return
	}
	if req.NewMax > o.cfg.MaxPlayersInRoom {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "max players exceeds the room ceiling")
		return
	}

	if !o.authorizeHost(sess, env.Seq, req.RoomID, req.UserID) {
		return
	}
	if err := o.store.SetMaxUsers(req.RoomID, req.NewMax); err != nil {
		o.ackError(sess, env.Seq, err)
		return
	}
	o.broadcaster.BroadcastToRoomExcept(req.RoomID, sess.ID,
		network.EventMaxPlayersChanged, maxPlayersChangedPayload{NewMax: req.NewMax})
	o.ack(sess, env.Seq, StatusOK, nil, "successfully changed room capacity")
}

// authorizeHost acks and returns false unless the room exists, the user
// exists, and the user is the room's host.
func (o *Orchestrator) authorizeHost(sess *session.Session, seq uint32, roomID, userID string) bool {
	room, exists := o.store.GetRoom(roomID)
	if !exists {
		o.ack(sess, seq, StatusNotFound, nil, "room not found")
		return false
	}
	if _, exists := o.store.GetUser(userID); !exists {
		o.ack(sess, seq, StatusNotFound, nil, "user not found")
		return false
	}
	if room.HostID != userID {
		logger.Log.Warnf("user %s attempted a host action in room %s without being host", userID, roomID)
		o.ack(sess, seq, StatusForbidden, nil, "you are not the host of this room")
		return false
	}
	return true
}

// --- race lifecycle ---

func (o *Orchestrator) handleStartGame(sess *session.Session, env *network.Envelope) {
	var req hostRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "malformed start_game request")
		return
	}

	room, exists := o.store.GetRoom(req.RoomID)
	if !exists {
		o.ack(sess, env.Seq, StatusNotFound, nil, "room not found")
		return
	}
	if _, exists := o.store.GetUser(req.UserID); !exists {
		o.ack(sess, env.Seq, StatusNotFound, nil, "user not found")
		return
	}
	if room.HostID != req.UserID {
		logger.Log.Warnf("user %s tried to start the game in room %s without being host", req.UserID, req.RoomID)
		o.ack(sess, env.Seq, StatusForbidden, nil, "you are not the host of this room")
		return
	}
	if len(room.Users) < 2 {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "there must be at least 2 players to start")
		return
	}
	if err := o.store.ChangeStatus(req.RoomID, store.StatusCountdown); err != nil {
		o.ackError(sess, env.Seq, err)
		return
	}

	o.dropRoomProgress(req.RoomID)
	o.broadcaster.BroadcastToRoomExcept(req.RoomID, sess.ID, network.EventGameStarted, nil)
	o.ack(sess, env.Seq, StatusOK, nil, "game started")
	if o.monitor != nil {
		o.monitor.IncRacesStarted()
	}

	o.store.StartCountdown(
		req.RoomID,
		o.cfg.CountdownCount,
		store.TimerCountdown,
		time.Duration(o.cfg.CountdownSpeedMs)*time.Millisecond,
		o.countdownTick(req.RoomID),
	)
}

func (o *Orchestrator) countdownTick(roomID string) func(remaining int, finished bool) {
	return func(remaining int, finished bool) {
		o.broadcaster.BroadcastToRoom(roomID, network.EventCountdown, tickPayload{CurrentTick: remaining})
		if !finished {
			return
		}

		o.store.DeleteTimer(roomID, store.TimerCountdown)
		o.broadcaster.BroadcastToRoom(roomID, network.EventCountdownFinished, nil)

		if err := o.store.ChangeStatus(roomID, store.StatusPlaying); err != nil {
			// The room was reset or deleted while counting down.
			logger.Log.Warnf("room %s could not enter playing after countdown: %v", roomID, err)
			return
		}
		o.startRaceTimer(roomID)
	}
}

func (o *Orchestrator) startRaceTimer(roomID string) {
	o.store.StartCountdown(
		roomID,
		o.cfg.RaceTimerCount,
		store.TimerGame,
		time.Duration(o.cfg.RaceTimerSpeedMs)*time.Millisecond,
		func(remaining int, finished bool) {
			o.broadcaster.BroadcastToRoom(roomID, network.EventRaceTimeLeft, tickPayload{CurrentTick: remaining})
			if finished {
				o.finishRace(roomID)
			}
		},
	)
}

// finishRace ends the race exactly once, whether the clock ran out or every
// racer finished. The RESULTS transition is the idempotency guard: it only
// succeeds from PLAYING.
func (o *Orchestrator) finishRace(roomID string) {
	if err := o.store.ChangeStatus(roomID, store.StatusResults); err != nil {
		return
	}
	o.store.DeleteTimer(roomID, store.TimerGame)

	standings := o.standingsForRoom(roomID)
	o.broadcaster.BroadcastToRoom(roomID, network.EventRaceFinished,
		map[string]interface{}{"standings": standings})
	if o.monitor != nil {
		o.monitor.IncRacesFinished()
	}

	if o.results != nil {
		room, exists := o.store.GetRoom(roomID)
		if exists {
			go func(paragraph string) {
				if err := o.results.RecordRace(roomID, paragraph, standings); err != nil {
					logger.Log.Errorf("failed to record race for room %s: %v", roomID, err)
				}
			}(room.ParagraphToType)
		}
	}
	logger.Log.Infof("race finished in room %s", roomID)
}

func (o *Orchestrator) handleBackToLobby(sess *session.Session, env *network.Envelope) {
	var req hostRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		o.ack(sess, env.Seq, StatusBadRequest, nil, "malformed back_to_lobby request")
		return
	}

	if !o.authorizeHost(sess, env.Seq, req.RoomID, req.UserID) {
		return
	}
	if err := o.store.ResetRoom(req.RoomID); err != nil {
		o.ackError(sess, env.Seq, err)
		return
	}
	o.dropRoomProgress(req.RoomID)
	o.ack(sess, env.Seq, StatusOK, nil, "back to lobby")
}

// --- progress ---

func (o *Orchestrator) handleSendProgress(sess *session.Session, env *network.Envelope) {
	var req sendProgressRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		logger.Log.Warnf("malformed send_progress from session %s: %v", sess.ID, err)
		return
	}

	o.recordProgress(req.RoomID, req.UserID, req.Progress)

	payload := userProgressPayload{UserID: req.UserID, Progress: req.Progress}
	if req.IsFinished {
		// Final progress must arrive; everything before it may be dropped.
		o.broadcaster.BroadcastToRoom(req.RoomID, network.EventSendUserProgress, payload)
	} else {
		o.broadcaster.BroadcastToRoomVolatile(req.RoomID, network.EventSendUserProgress, payload)
		return
	}

	allFinished, err := o.store.MarkFinished(req.RoomID, req.UserID)
	if err != nil {
		logger.Log.Errorf("could not mark user %s finished in room %s: %v", req.UserID, req.RoomID, err)
		return
	}
	if allFinished {
		o.finishRace(req.RoomID)
	}
}

func (o *Orchestrator) recordProgress(roomID, userID string, progress store.Progress) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	byUser, exists := o.progress[roomID]
	if !exists {
		byUser = make(map[string]store.Progress)
		o.progress[roomID] = byUser
	}
	byUser[userID] = progress
}

func (o *Orchestrator) dropUserProgress(roomID, userID string) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	delete(o.progress[roomID], userID)
}

func (o *Orchestrator) dropRoomProgress(roomID string) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	delete(o.progress, roomID)
}

func (o *Orchestrator) standingsForRoom(roomID string) []models.Standing {
	room, exists := o.store.GetRoom(roomID)
	if !exists {
		return nil
	}

	o.progressMutex.Lock()
	byUser := o.progress[roomID]
	participants := make([]Participant, 0, len(room.Users))
	for _, member := range room.Users {
		participants = append(participants, Participant{
			UserID:   member.UserID,
			Username: member.Username,
			Progress: byUser[member.UserID],
			Finished: member.IsFinished,
		})
	}
	o.progressMutex.Unlock()

	return ComputeStandings(participants)
}

// --- acknowledgement plumbing ---

func (o *Orchestrator) ack(sess *session.Session, seq uint32, status int, data interface{}, message string) {
	if err := sess.Ack(seq, status, data, message); err != nil {
		logger.Log.Debugf("ack to session %s failed: %v", sess.ID, err)
	}
}

// ackError maps store errors onto wire statuses.
func (o *Orchestrator) ackError(sess *session.Session, seq uint32, err error) {
	switch {
	case errors.Is(err, store.ErrRoomNotFound), errors.Is(err, store.ErrUserNotFound):
		o.ack(sess, seq, StatusNotFound, nil, err.Error())
	case errors.Is(err, store.ErrServerFull),
		errors.Is(err, store.ErrRoomFull),
		errors.Is(err, store.ErrRoomClosed),
		errors.Is(err, store.ErrAlreadyInRoom),
		errors.Is(err, store.ErrCapacityBelowOccupancy),
		errors.Is(err, store.ErrTransitionNotAllowed):
		o.ack(sess, seq, StatusBadRequest, nil, err.Error())
	default:
		logger.Log.Errorf("internal error for session %s: %v", sess.ID, err)
		o.ack(sess, seq, StatusInternalError, nil, "internal server error")
	}
}

// emitNamedError surfaces capacity and availability failures as named error
// events in addition to the acknowledgement.
func (o *Orchestrator) emitNamedError(sess *session.Session, err error) {
	var name string
	switch {
	case errors.Is(err, store.ErrServerFull):
		name = network.ErrNameServerFull
	case errors.Is(err, store.ErrRoomFull):
		name = network.ErrNameRoomFull
	case errors.Is(err, store.ErrRoomNotFound):
		name = network.ErrNameRoomNotFound
	case errors.Is(err, store.ErrRoomClosed):
		name = network.ErrNameRoomClosed
	default:
		return
	}
	if sendErr := sess.SendError(name, err.Error()); sendErr != nil {
		logger.Log.Debugf("error event to session %s failed: %v", sess.ID, sendErr)
	}
}

func (o *Orchestrator) updateRoomGauge() {
	if o.monitor != nil {
		o.monitor.SetActiveRooms(o.store.RoomCount())
	}
}
