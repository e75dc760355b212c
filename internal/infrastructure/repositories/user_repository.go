package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

// walletIndexTTL bounds staleness of the wallet-address→user cache.
// Wallet assignments change rarely; five minutes keeps the hot path off
// the database without risking long-lived misroutes.
const walletIndexTTL = 5 * time.Minute

// UserRepository resolves users and the wallet-address index, with a
// Redis read-through cache in front of the index lookup.
type UserRepository struct {
	db     *sqlx.DB
	cache  *redis.Client
	logger *zap.Logger
}

// NewUserRepository creates a user repository. cache may be nil, in
// which case every lookup hits Postgres.
func NewUserRepository(db *sqlx.DB, cache *redis.Client, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, cache: cache, logger: logger}
}

type userRow struct {
	ID             uuid.UUID `db:"id"`
	TelegramChatID *int64    `db:"telegram_chat_id"`
	Email          *string   `db:"email"`
}

// GetByID fetches a user with their wallet addresses
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	var row userRow
	query := `SELECT id, telegram_chat_id, email FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var wallets []string
	walletQuery := `SELECT address FROM user_wallets WHERE user_id = $1`
	if err := r.db.SelectContext(ctx, &wallets, walletQuery, id); err != nil {
		return nil, err
	}

	return &entities.User{
		ID:              row.ID,
		WalletAddresses: wallets,
		TelegramChatID:  row.TelegramChatID,
		Email:           row.Email,
	}, nil
}

// GetByWalletAddress resolves the owner of a destination address,
// consulting the cache first. Returns nil when no user owns it.
func (r *UserRepository) GetByWalletAddress(ctx context.Context, address string) (*entities.User, error) {
	if id, ok := r.cachedOwner(ctx, address); ok {
		return r.GetByID(ctx, id)
	}

	var userID uuid.UUID
	query := `SELECT user_id FROM user_wallets WHERE address = $1`
	if err := r.db.GetContext(ctx, &userID, query, address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	r.cacheOwner(ctx, address, userID)
	return r.GetByID(ctx, userID)
}

func walletIndexKey(address string) string {
	return "wallet_owner:" + address
}

func (r *UserRepository) cachedOwner(ctx context.Context, address string) (uuid.UUID, bool) {
	if r.cache == nil {
		return uuid.Nil, false
	}
	val, err := r.cache.Get(ctx, walletIndexKey(address)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Wallet index cache read failed",
				zap.String("address", address), zap.Error(err))
		}
		return uuid.Nil, false
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (r *UserRepository) cacheOwner(ctx context.Context, address string, userID uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, walletIndexKey(address), userID.String(), walletIndexTTL).Err(); err != nil {
		r.logger.Warn("Wallet index cache write failed",
			zap.String("address", address), zap.Error(err))
	}
}
