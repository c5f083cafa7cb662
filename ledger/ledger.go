// ledger/ledger.go
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/boardserver/logger"
	"github.com/wfunc/boardserver/models"
	"github.com/wfunc/boardserver/persistence"
)

var (
	// ErrInsufficientBalance means a debit would drive the balance
	// negative. The debit is skipped, never partially applied.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFriends          = errors.New("users are not friends")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Store owns all balance mutations. Every credit and debit locks the user
// row, re-checks inside the transaction, and writes the balance together
// with its CoinTransaction row so the audit trail can never diverge.
type Store struct {
	db persistence.Database
}

func NewStore(db persistence.Database) *Store {
	return &Store{db: db}
}

// Credit adds amount to the user's balance in its own transaction.
func (s *Store) Credit(ctx context.Context, userID, amount int64, txType string, gameID *string) (*models.CoinTransaction, error) {
	var entry *models.CoinTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = CreditTx(tx.WithContext(ctx), userID, amount, txType, gameID, nil)
		return err
	})
	return entry, err
}

// Debit subtracts amount from the user's balance in its own transaction.
// Returns ErrInsufficientBalance, with nothing written, when the balance
// cannot cover it.
func (s *Store) Debit(ctx context.Context, userID, amount int64, txType string, gameID *string) (*models.CoinTransaction, error) {
	var entry *models.CoinTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = DebitTx(tx.WithContext(ctx), userID, amount, txType, gameID, nil)
		return err
	})
	return entry, err
}

// Transfer moves coins between friends: a paired debit and credit in a
// single transaction. If the friendship or balance check fails inside the
// transaction, neither leg is applied.
func (s *Store) Transfer(ctx context.Context, fromID, toID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		var friendship models.Friendship
		err := tx.Where("user_id = ? AND friend_id = ?", fromID, toID).
			Or("user_id = ? AND friend_id = ?", toID, fromID).
			First(&friendship).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFriends
		}
		if err != nil {
			return err
		}

		if _, err := DebitTx(tx, fromID, amount, models.TxTypeGiftOut, nil, &toID); err != nil {
			return err
		}
		if _, err := CreditTx(tx, toID, amount, models.TxTypeGiftIn, nil, &fromID); err != nil {
			return err
		}
		logger.Log.Infof("gift transfer: %d coins from user %d to user %d", amount, fromID, toID)
		return nil
	})
}

// Balance reads the current balance without locking.
func (s *Store) Balance(ctx context.Context, userID int64) (int64, error) {
	var user models.User
	err := s.db.DB().WithContext(ctx).Select("coins").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return user.Coins, nil
}

// CheckStake reports whether the user can cover a stake. Advisory only;
// the binding check happens under the row lock at settlement time.
func (s *Store) CheckStake(userID int64, stake int64) error {
	if stake <= 0 {
		return nil
	}
	balance, err := s.Balance(context.Background(), userID)
	if err != nil {
		return err
	}
	if balance < stake {
		return ErrInsufficientBalance
	}
	return nil
}

// History returns the user's ledger rows in creation order.
func (s *Store) History(ctx context.Context, userID int64, limit int) ([]models.CoinTransaction, error) {
	var entries []models.CoinTransaction
	q := s.db.DB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return entries, q.Find(&entries).Error
}

// CreditTx applies a credit inside an existing transaction. Callers that
// need the credit atomic with other writes (settlement, weekly rewards)
// use this form.
func CreditTx(tx *gorm.DB, userID, amount int64, txType string, gameID *string, counterparty *int64) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	user, err := lockUser(tx, userID)
	if err != nil {
		return nil, err
	}

	before := user.Coins
	after := before + amount
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("coins", after).Error; err != nil {
		return nil, err
	}
	return appendEntry(tx, userID, amount, txType, before, after, gameID, counterparty)
}

// DebitTx applies a debit inside an existing transaction. Sufficiency is
// verified against the row-locked balance, not a stale read, closing the
// race where two concurrent debits both observe enough coins.
func DebitTx(tx *gorm.DB, userID, amount int64, txType string, gameID *string, counterparty *int64) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	user, err := lockUser(tx, userID)
	if err != nil {
		return nil, err
	}

	before := user.Coins
	if before < amount {
		return nil, ErrInsufficientBalance
	}
	after := before - amount
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("coins", after).Error; err != nil {
		return nil, err
	}
	return appendEntry(tx, userID, -amount, txType, before, after, gameID, counterparty)
}

func lockUser(tx *gorm.DB, userID int64) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func appendEntry(tx *gorm.DB, userID, amount int64, txType string, before, after int64, gameID *string, counterparty *int64) (*models.CoinTransaction, error) {
	entry := &models.CoinTransaction{
		TxID:           uuid.New().String(),
		UserID:         userID,
		Amount:         amount,
		Type:           txType,
		BalanceBefore:  before,
		BalanceAfter:   after,
		GameID:         gameID,
		CounterpartyID: counterparty,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}
