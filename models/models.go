// models/models.go
package models

import (
	"time"

	"github.com/lib/pq"
)

// GameMode 游戏模式
type GameMode string

const (
	ModePractice GameMode = "practice" // 练习模式，不计入排行
	ModeFree     GameMode = "free"     // 免费在线对局
	ModeStaked   GameMode = "staked"   // 押注房间对局
)

// Online reports whether results of this mode feed shared stats and the
// weekly leaderboard. Practice games are display-only.
func (m GameMode) Online() bool {
	return m == ModeFree || m == ModeStaked
}

// GameStatus 对局状态，只允许单向转换 active -> {finished|expired|abandoned}
type GameStatus string

const (
	StatusActive    GameStatus = "active"
	StatusFinished  GameStatus = "finished"
	StatusExpired   GameStatus = "expired"
	StatusAbandoned GameStatus = "abandoned"
)

// Terminal reports whether the status is a settled end state.
func (s GameStatus) Terminal() bool {
	return s == StatusFinished || s == StatusExpired || s == StatusAbandoned
}

// Mark 棋子标记
type Mark string

const (
	MarkX Mark = "X"
	MarkO Mark = "O"
)

// Opponent returns the other mark.
func (m Mark) Opponent() Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}

// Game 对局记录。Board 是 15 个格子的快照（'-' 为空），Seq 是下一手的序号。
type Game struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	RoomID       string     `gorm:"index"`
	Mode         GameMode   `gorm:"type:varchar(16);not null;index"`
	Stake        int64      `gorm:"not null;default:0"`
	PlayerXID    int64      `gorm:"index;not null"`
	PlayerOID    int64      `gorm:"index;not null"`
	Board        string     `gorm:"type:varchar(15);not null"`
	Turn         Mark       `gorm:"type:varchar(1);not null"`
	Seq          int64      `gorm:"not null;default:0"`
	Status       GameStatus `gorm:"type:varchar(16);not null;index"`
	WinnerID     *int64
	WinCondition string        `gorm:"type:varchar(16)"`
	WinCells     pq.Int64Array `gorm:"type:integer[]"`
	AutoPlayX    bool          `gorm:"not null;default:false"`
	AutoPlayXAt  *time.Time
	AutoPlayO    bool `gorm:"not null;default:false"`
	AutoPlayOAt  *time.Time
	CreatedAt    time.Time
	LastMoveAt   time.Time `gorm:"index"`
	FinishedAt   *time.Time
}

// PlayerMark maps a user id onto their mark in this game.
func (g *Game) PlayerMark(userID int64) (Mark, bool) {
	switch userID {
	case g.PlayerXID:
		return MarkX, true
	case g.PlayerOID:
		return MarkO, true
	}
	return "", false
}

// PlayerID is the inverse of PlayerMark.
func (g *Game) PlayerID(mark Mark) int64 {
	if mark == MarkX {
		return g.PlayerXID
	}
	return g.PlayerOID
}

// Move 落子记录，只追加。(game_id, seq) 唯一保证序号无空洞。
type Move struct {
	ID        uint   `gorm:"primaryKey"`
	GameID    string `gorm:"type:uuid;uniqueIndex:idx_game_seq;not null"`
	Seq       int64  `gorm:"uniqueIndex:idx_game_seq;not null"`
	Mark      Mark   `gorm:"type:varchar(1);not null"`
	Position  int    `gorm:"not null"`
	Synthetic bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

// User 玩家档案与战绩。LossStreak 为连败计数，触发逆转成就时使用。
type User struct {
	ID            int64  `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Wins          int    `gorm:"not null;default:0"`
	Losses        int    `gorm:"not null;default:0"`
	Draws         int    `gorm:"not null;default:0"`
	CurrentStreak int    `gorm:"not null;default:0"`
	BestStreak    int    `gorm:"not null;default:0"`
	LossStreak    int    `gorm:"not null;default:0"`
	DiagonalWins  int    `gorm:"not null;default:0"`
	Coins         int64  `gorm:"not null;default:0"`
	Bot           bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Games 总对局数。
func (u *User) Games() int {
	return u.Wins + u.Losses + u.Draws
}

// 交易类型
const (
	TxTypePracticeReward = "practice_reward"
	TxTypeWinReward      = "win_reward"
	TxTypeLossPenalty    = "loss_penalty"
	TxTypeStakeWin       = "stake_win"
	TxTypeStakeLoss      = "stake_loss"
	TxTypeGiftOut        = "gift_out"
	TxTypeGiftIn         = "gift_in"
	TxTypeWeeklyReward   = "weekly_reward"
)

// CoinTransaction 账目流水，只追加。交易前后余额一并入库，
// 按创建顺序重放任一用户的流水必须得到其当前余额。
type CoinTransaction struct {
	ID             uint    `gorm:"primaryKey"`
	TxID           string  `gorm:"type:uuid;uniqueIndex;not null"`
	UserID         int64   `gorm:"index;not null"`
	Amount         int64   `gorm:"not null"`
	Type           string  `gorm:"type:varchar(32);not null"`
	BalanceBefore  int64   `gorm:"not null"`
	BalanceAfter   int64   `gorm:"not null"`
	GameID         *string `gorm:"type:uuid"`
	CounterpartyID *int64
	CreatedAt      time.Time `gorm:"index"`
}

// WeeklyStats 按 (user, ISO week, ISO year) 聚合的周战绩。
// FinalRank 与 RewardReceived 只在周结算时写入一次。
type WeeklyStats struct {
	ID             uint  `gorm:"primaryKey"`
	UserID         int64 `gorm:"uniqueIndex:idx_weekly_user;not null"`
	Week           int   `gorm:"uniqueIndex:idx_weekly_user;not null"`
	Year           int   `gorm:"uniqueIndex:idx_weekly_user;not null"`
	Wins           int   `gorm:"not null;default:0"`
	Losses         int   `gorm:"not null;default:0"`
	Draws          int   `gorm:"not null;default:0"`
	Games          int   `gorm:"not null;default:0"`
	CurrentStreak  int   `gorm:"not null;default:0"`
	BestStreak     int   `gorm:"not null;default:0"`
	CoinsEarned    int64 `gorm:"not null;default:0"`
	FinalRank      *int
	RewardReceived bool `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// 周结算任务状态
const (
	ResetPending    = "pending"
	ResetInProgress = "in_progress"
	ResetCompleted  = "completed"
	ResetFailed     = "failed"
)

// WeeklyResetStatus 周结算的崩溃恢复记录，每个 (week, year) 一行。
type WeeklyResetStatus struct {
	ID          uint   `gorm:"primaryKey"`
	Week        int    `gorm:"uniqueIndex:idx_reset_week;not null"`
	Year        int    `gorm:"uniqueIndex:idx_reset_week;not null"`
	Status      string `gorm:"type:varchar(16);not null"`
	RetryCount  int    `gorm:"not null;default:0"`
	NextRetryAt *time.Time
	LastError   string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// 成就规则类型
const (
	RuleFirstWin     = "first_win"
	RuleWinStreak    = "win_streak"
	RuleTotalWins    = "total_wins"
	RuleTotalGames   = "total_games"
	RuleDiagonalWins = "diagonal_wins"
	RuleComeback     = "comeback"
)

// AchievementType 成就目录，外部配置数据而非硬编码逻辑。
type AchievementType struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Icon      string
	Rule      string `gorm:"type:varchar(32);not null"`
	Threshold int    `gorm:"not null;default:0"`
	CreatedAt time.Time
}

// UserAchievement 成就授予记录。唯一索引保证同一成就只授予一次，
// 并发重复授予落到 23505 后按无操作处理。
type UserAchievement struct {
	ID                uint    `gorm:"primaryKey"`
	UserID            int64   `gorm:"uniqueIndex:idx_user_achievement;not null"`
	AchievementTypeID uint    `gorm:"uniqueIndex:idx_user_achievement;not null"`
	GameID            *string `gorm:"type:uuid"`
	CreatedAt         time.Time
}

// Friendship 好友关系，礼物转账的前置校验依据。
type Friendship struct {
	ID        uint  `gorm:"primaryKey"`
	UserID    int64 `gorm:"uniqueIndex:idx_friend_pair;not null"`
	FriendID  int64 `gorm:"uniqueIndex:idx_friend_pair;not null"`
	CreatedAt time.Time
}
