package rpc

import (
	"context"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/boardserver/achievement"
	"github.com/wfunc/boardserver/ledger"
	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/persistence"
	"github.com/wfunc/boardserver/weekly"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
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

// BoardService exposes read-side queries over net/rpc. Methods follow the
// net/rpc signature: exported method, pointer reply, error return.
type BoardService struct {
	db           persistence.Database
	ledgerStore  *ledger.Store
	weeklyStore  *weekly.Store
	achievements *achievement.Evaluator
}

func NewBoardService(db persistence.Database, ledgerStore *ledger.Store, weeklyStore *weekly.Store, achievements *achievement.Evaluator) *BoardService {
	return &BoardService{
		db:           db,
		ledgerStore:  ledgerStore,
		weeklyStore:  weeklyStore,
		achievements: achievements,
	}
}

type GetPlayerArgs struct {
	UserID int64
}

type PlayerStats struct {
	UserID        int64
	Name          string
	Wins          int
	Losses        int
	Draws         int
	Games         int
	CurrentStreak int
	BestStreak    int
	DiagonalWins  int
	Coins         int64
	Achievements  []string
}

func (bs *BoardService) GetPlayerStats(args *GetPlayerArgs, reply *PlayerStats) error {
	var user models.User
	if err := bs.db.DB().First(&user, args.UserID).Error; err != nil {
		return err
	}

	granted, err := bs.achievements.ListForUser(context.Background(), args.UserID)
	if err != nil {
		return err
	}
	names, err := bs.achievementNames(granted)
	if err != nil {
		return err
	}

	*reply = PlayerStats{
		UserID:        user.ID,
		Name:          user.Name,
		Wins:          user.Wins,
		Losses:        user.Losses,
		Draws:         user.Draws,
		Games:         user.Games(),
		CurrentStreak: user.CurrentStreak,
		BestStreak:    user.BestStreak,
		DiagonalWins:  user.DiagonalWins,
		Coins:         user.Coins,
		Achievements:  names,
	}
	return nil
}

func (bs *BoardService) achievementNames(granted []models.UserAchievement) ([]string, error) {
	if len(granted) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(granted))
	for _, ua := range granted {
		ids = append(ids, ua.AchievementTypeID)
	}
	var types []models.AchievementType
	if err := bs.db.DB().Where("id IN ?", ids).Find(&types).Error; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.Name)
	}
	return names, nil
}

type GetBalanceArgs struct {
	UserID int64
}

type GetBalanceReply struct {
	Balance int64
}

func (bs *BoardService) GetBalance(args *GetBalanceArgs, reply *GetBalanceReply) error {
	balance, err := bs.ledgerStore.Balance(context.Background(), args.UserID)
	if err != nil {
		return err
	}
	reply.Balance = balance
	return nil
}

type LeaderboardArgs struct {
	Week  int
	Year  int
	Limit int
}

type LeaderboardRow struct {
	UserID      int64
	Wins        int
	Losses      int
	Draws       int
	Games       int
	BestStreak  int
	CoinsEarned int64
}

type LeaderboardReply struct {
	Week int
	Year int
	Rows []LeaderboardRow
}

// GetWeeklyLeaderboard returns the ranked standings for a week. Week 0
// means the current ISO week.
func (bs *BoardService) GetWeeklyLeaderboard(args *LeaderboardArgs, reply *LeaderboardReply) error {
	week, year := args.Week, args.Year
	if week == 0 {
		week, year = weekly.WeekOf(time.Now())
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := bs.weeklyStore.Leaderboard(context.Background(), week, year, limit)
	if err != nil {
		return err
	}

	reply.Week = week
	reply.Year = year
	reply.Rows = make([]LeaderboardRow, 0, len(rows))
	for _, r := range rows {
		reply.Rows = append(reply.Rows, LeaderboardRow{
			UserID:      r.UserID,
			Wins:        r.Wins,
			Losses:      r.Losses,
			Draws:       r.Draws,
			Games:       r.Games,
			BestStreak:  r.BestStreak,
			CoinsEarned: r.CoinsEarned,
		})
	}
	return nil
}
