package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/boardserver/board"
	"github.com/wfunc/boardserver/broadcast"
	"github.com/wfunc/boardserver/game"
	"github.com/wfunc/boardserver/ledger"
	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/monitor"
	"github.com/wfunc/boardserver/network"
	"github.com/wfunc/boardserver/persistence"
	"github.com/wfunc/boardserver/room"
	boardserver_rpc "github.com/wfunc/boardserver/rpc"
	"github.com/wfunc/boardserver/session"
	"github.com/wfunc/boardserver/settlement"
)

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	db             persistence.Database
	gameManager    *game.Manager
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	rpcServer      *boardserver_rpc.Server
	mon            *monitor.Monitor
	botPicker      game.MovePicker
	shutdownChan   chan struct{}
}

func NewGameServer(addr, rpcAddr string, db persistence.Database, gameManager *game.Manager, ledgerStore *ledger.Store, boardService *boardserver_rpc.BoardService, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:           addr,
		db:             db,
		gameManager:    gameManager,
		roomManager:    room.NewRoomManager(ledgerStore),
		sessionManager: session.NewManager(),
		mon:            mon,
		botPicker:      game.NewRandomPicker(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	s.broadcaster = broadcast.NewGameBroadcaster(s.sessionManager)

	// 所有已落库的走子, 包括托管代下的, 都从这里广播出去
	gameManager.OnMove = s.onMove

	// 初始化RPC服务器
	rpcServer, err := boardserver_rpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer
	rpc.Register(boardService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.mon != nil {
		s.mon.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.handleDisconnect(sess)
		s.sessionManager.Remove(sess.GetID())
		if s.mon != nil {
			s.mon.DecOnlinePlayers()
		}
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()
	case network.MsgTypeAuth:
		s.handleAuth(sess, packet)
	case network.MsgTypeJoinGame:
		s.handleJoinGame(sess, packet)
	case network.MsgTypeLeaveGame:
		s.handleLeaveGame(sess, packet)
	case network.MsgTypeMove:
		s.handleMove(sess, packet)
	case network.MsgTypeAbandon:
		s.handleAbandon(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

type authRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type authResponse struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

func (s *GameServer) handleAuth(sess *session.Session, packet *network.Packet) {
	var req authRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil || req.UserID == 0 {
		return
	}

	user := models.User{ID: req.UserID, Name: req.Name}
	if err := s.db.DB().FirstOrCreate(&user, models.User{ID: req.UserID}).Error; err != nil {
		logger.Log.Errorf("Failed to load user %d: %v", req.UserID, err)
		return
	}

	sess.UserID = user.ID
	logger.Log.Infof("Session %s authenticated as user %d", sess.GetID(), user.ID)

	data, _ := json.Marshal(authResponse{UserID: user.ID, Balance: user.Coins})
	sess.Send(network.MsgTypeAuth, data)
}

type joinRequest struct {
	Mode  models.GameMode `json:"mode"`
	Stake int64           `json:"stake"`
}

type joinResponse struct {
	RoomID  string `json:"room_id"`
	Waiting bool   `json:"waiting"`
	Error   string `json:"error,omitempty"`
}

func (s *GameServer) handleJoinGame(sess *session.Session, packet *network.Packet) {
	if sess.UserID == 0 {
		return
	}
	var req joinRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	if req.Mode == "" {
		req.Mode = models.ModeFree
	}

	// 练习模式不配对, 直接开一局人机对战
	if req.Mode == models.ModePractice {
		s.startPractice(sess)
		return
	}

	r, err := s.roomManager.Join(sess, req.Mode, req.Stake, s.broadcaster)
	if err != nil {
		data, _ := json.Marshal(joinResponse{Error: err.Error()})
		sess.Send(network.MsgTypeJoinGame, data)
		return
	}

	logger.Log.Infof("Session %s joined room %s (mode=%s stake=%d)", sess.GetID(), r.ID, req.Mode, req.Stake)

	if !r.Full() {
		data, _ := json.Marshal(joinResponse{RoomID: r.ID, Waiting: true})
		sess.Send(network.MsgTypeJoinGame, data)
		return
	}

	s.startGame(r)
}

// startGame 双方入座后落地对局并推送初始局面
func (s *GameServer) startGame(r *room.Room) {
	players := r.GetSessions()
	if len(players) != room.MaxSeats {
		return
	}

	g, err := s.gameManager.CreateGame(context.Background(), r.ID, r.Mode, r.Stake, players[0].UserID, players[1].UserID)
	if err != nil {
		logger.Log.Errorf("Failed to create game in room %s: %v", r.ID, err)
		s.roomManager.RemoveRoom(r.ID)
		return
	}
	r.StartGame(g.ID)
	if s.mon != nil {
		s.mon.IncActiveGames()
	}

	for _, p := range players {
		s.sessionManager.BindGame(p.GetID(), g.ID)
	}

	data, _ := json.Marshal(boardState(g))
	s.broadcaster.BroadcastToGame(g.ID, network.MsgTypeBoardUpdated, data)
}

// 练习陪练机器人的保留用户ID
const botUserID int64 = 999999999

// startPractice opens a human-vs-bot game for the session. The human
// plays X and therefore moves first.
func (s *GameServer) startPractice(sess *session.Session) {
	bot := models.User{ID: botUserID, Name: "training_bot", Bot: true}
	if err := s.db.DB().FirstOrCreate(&bot, models.User{ID: botUserID}).Error; err != nil {
		logger.Log.Errorf("Failed to ensure bot user: %v", err)
		return
	}

	g, err := s.gameManager.CreateGame(context.Background(), "", models.ModePractice, 0, sess.UserID, botUserID)
	if err != nil {
		logger.Log.Errorf("Failed to create practice game for user %d: %v", sess.UserID, err)
		return
	}
	if s.mon != nil {
		s.mon.IncActiveGames()
	}
	s.sessionManager.BindGame(sess.GetID(), g.ID)

	data, _ := json.Marshal(boardState(g))
	sess.Send(network.MsgTypeBoardUpdated, data)
}

// playBotMove answers with one random legal bot move. Runs off the move
// callback's goroutine so it queues behind the per-game lock instead of
// re-entering it.
func (s *GameServer) playBotMove(gameID string) {
	ctx := context.Background()
	g, err := s.gameManager.Game(ctx, gameID)
	if err != nil || g.Status != models.StatusActive || g.PlayerID(g.Turn) != botUserID {
		return
	}

	b, err := board.Parse(g.Board)
	if err != nil {
		logger.Log.Errorf("corrupt board for game %s: %v", gameID, err)
		return
	}
	pos, ok := s.botPicker.Pick(b, g.Seq == 0)
	if !ok {
		return
	}

	if _, err := s.gameManager.ApplyMove(ctx, gameID, botUserID, pos, g.Seq); err != nil {
		logger.Log.Debugf("bot move for game %s not applied: %v", gameID, err)
	}
}

func (s *GameServer) handleLeaveGame(sess *session.Session, packet *network.Packet) {
	s.roomManager.EvictSession(sess.GetID())
	s.abandonActive(sess)
	s.sessionManager.BindGame(sess.GetID(), "")
}

type moveRequest struct {
	GameID   string `json:"game_id"`
	Position int    `json:"position"`
	Seq      int64  `json:"seq"`
}

type moveRejection struct {
	GameID   string `json:"game_id"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

func (s *GameServer) handleMove(sess *session.Session, packet *network.Packet) {
	if sess.UserID == 0 {
		return
	}
	var req moveRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	if req.GameID == "" {
		req.GameID = sess.GameID
	}

	_, err := s.gameManager.ApplyMove(context.Background(), req.GameID, sess.UserID, req.Position, req.Seq)
	if err != nil {
		if s.mon != nil {
			s.mon.IncMovesRejected(rejectionReason(err))
		}
		data, _ := json.Marshal(moveRejection{
			GameID:   req.GameID,
			Position: req.Position,
			Reason:   rejectionReason(err),
		})
		sess.Send(network.MsgTypeMoveRejected, data)
		return
	}
	// 成功的走子经由 onMove 统一广播
}

func (s *GameServer) handleAbandon(sess *session.Session, packet *network.Packet) {
	s.abandonActive(sess)
}

// abandonActive 把会话当前对局按弃局结算并广播终局
func (s *GameServer) abandonActive(sess *session.Session) {
	if sess.UserID == 0 || sess.GameID == "" {
		return
	}

	res, err := s.gameManager.Abandon(context.Background(), sess.GameID, sess.UserID)
	if err != nil {
		if !errors.Is(err, game.ErrGameNotActive) && !errors.Is(err, game.ErrGameNotFound) {
			logger.Log.Errorf("Failed to abandon game %s: %v", sess.GameID, err)
		}
		return
	}
	s.finishGame(res)
}

// handleDisconnect 断线按弃局处理, 留下的玩家立即获胜
func (s *GameServer) handleDisconnect(sess *session.Session) {
	s.roomManager.EvictSession(sess.GetID())
	s.abandonActive(sess)
}

// onMove observes every committed move, including synthetic ones played
// by the idle sweeper, and fans the new position out to both players.
func (s *GameServer) onMove(res *game.MoveResult) {
	if s.mon != nil {
		s.mon.IncMovesApplied()
		if res.Move.Synthetic {
			s.mon.IncSyntheticMoves()
		}
	}

	data, _ := json.Marshal(boardState(&res.Game))
	s.broadcaster.BroadcastToGame(res.Game.ID, network.MsgTypeBoardUpdated, data)

	if res.Settlement != nil {
		s.finishGame(res.Settlement)
		return
	}

	if res.Game.Mode == models.ModePractice && res.Game.PlayerID(res.Game.Turn) == botUserID {
		go s.playBotMove(res.Game.ID)
	}
}

type finishedPayload struct {
	GameID       string             `json:"game_id"`
	Status       models.GameStatus  `json:"status"`
	WinnerID     *int64             `json:"winner_id,omitempty"`
	Draw         bool               `json:"draw"`
	WinCondition string             `json:"win_condition,omitempty"`
	WinCells     []int64            `json:"win_cells,omitempty"`
	CoinDeltas   map[int64]int64    `json:"coin_deltas,omitempty"`
	Achievements map[int64][]string `json:"achievements,omitempty"`
}

func (s *GameServer) finishGame(res *settlement.Result) {
	if s.mon != nil {
		s.mon.DecActiveGames()
		s.mon.IncSettlements(string(res.Game.Status))
	}

	achievements := make(map[int64][]string)
	for userID, granted := range res.Achievements {
		for _, a := range granted {
			achievements[userID] = append(achievements[userID], a.Name)
		}
	}

	payload := finishedPayload{
		GameID:       res.Game.ID,
		Status:       res.Game.Status,
		WinnerID:     res.WinnerID,
		Draw:         res.Draw,
		WinCondition: res.Game.WinCondition,
		WinCells:     []int64(res.Game.WinCells),
		CoinDeltas:   res.CoinDeltas,
		Achievements: achievements,
	}
	data, _ := json.Marshal(payload)
	s.broadcaster.BroadcastToGame(res.Game.ID, network.MsgTypeGameFinished, data)

	// 终局后解绑会话并回收房间
	for _, p := range s.sessionManager.GetByGameID(res.Game.ID) {
		s.sessionManager.BindGame(p.GetID(), "")
	}
	s.roomManager.RemoveRoom(res.Game.RoomID)
}

type boardPayload struct {
	GameID   string            `json:"game_id"`
	Board    string            `json:"board"`
	Turn     models.Mark       `json:"turn"`
	Seq      int64             `json:"seq"`
	Status   models.GameStatus `json:"status"`
	PlayerX  int64             `json:"player_x"`
	PlayerO  int64             `json:"player_o"`
	LastMove time.Time         `json:"last_move"`
}

func boardState(g *models.Game) boardPayload {
	return boardPayload{
		GameID:   g.ID,
		Board:    g.Board,
		Turn:     g.Turn,
		Seq:      g.Seq,
		Status:   g.Status,
		PlayerX:  g.PlayerXID,
		PlayerO:  g.PlayerOID,
		LastMove: g.LastMoveAt,
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, game.ErrStaleSequence):
		return "stale_sequence"
	case errors.Is(err, game.ErrNotInGame):
		return "not_in_game"
	case errors.Is(err, game.ErrGameNotActive):
		return "game_not_active"
	case errors.Is(err, game.ErrGameNotFound):
		return "game_not_found"
	default:
		return "internal"
	}
}
