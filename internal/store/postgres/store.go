// Package postgres implements the mirror store (§4.5) against
// PostgreSQL via gorm, including the tsvector full-text search index
// the spec's search endpoint requires (§4.5, §6).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
)

const uniqueViolationCode = "23505"

// Store is the PostgreSQL-backed mirror store.
type Store struct {
	db *gorm.DB
}

// New opens dsn, runs AutoMigrate, and installs the tsvector search
// trigger. Connection pool sizing follows the same shape the rest of
// the corpus's postgres stores use.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Health pings the underlying connection, the check the core's
// liveness/readiness probes run against.
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(
		&domain.User{},
		&domain.MailAccount{},
		&domain.Message{},
		&domain.Attachment{},
	); err != nil {
		return err
	}
	return s.installSearchIndex()
}

// installSearchIndex adds the tsvector column and maintenance trigger
// the teacher's own LIKE-based search doesn't have: subject, sender and
// body are weighted A/B/C so subject matches rank above sender and body
// matches, and the
// trigger keeps the column current on every insert or update so
// search never reads stale tokens.
func (s *Store) installSearchIndex() error {
	stmts := []string{
		`ALTER TABLE messages ADD COLUMN IF NOT EXISTS search_vector tsvector`,
		`CREATE INDEX IF NOT EXISTS idx_messages_search_vector ON messages USING GIN (search_vector)`,
		`CREATE OR REPLACE FUNCTION messages_search_vector_update() RETURNS trigger AS $$
		BEGIN
			NEW.search_vector :=
				setweight(to_tsvector('english', coalesce(NEW.subject, '')), 'A') ||
				setweight(to_tsvector('english', coalesce(NEW."from", '')), 'B') ||
				setweight(to_tsvector('english', coalesce(NEW.body, '')), 'C');
			RETURN NEW;
		END
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS messages_search_vector_trigger ON messages`,
		`CREATE TRIGGER messages_search_vector_trigger
			BEFORE INSERT OR UPDATE OF subject, "from", body ON messages
			FOR EACH ROW EXECUTE FUNCTION messages_search_vector_update()`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("installing search index: %w", err)
		}
	}
	return nil
}

// ========== Account ==========

func (s *Store) CreateAccount(ctx context.Context, account *domain.MailAccount) error {
	err := s.db.WithContext(ctx).Create(account).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: account already linked", mailerr.ErrAlreadyLinked)
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.MailAccount, error) {
	var account domain.MailAccount
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mailerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, userID, email string) (*domain.MailAccount, error) {
	var account domain.MailAccount
	err := s.db.WithContext(ctx).Where("user_id = ? AND email = ?", userID, email).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mailerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]domain.MailAccount, error) {
	var accounts []domain.MailAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&accounts).Error
	return accounts, err
}

func (s *Store) ListAccountsDueForSync(ctx context.Context) ([]domain.MailAccount, error) {
	var accounts []domain.MailAccount
	err := s.db.WithContext(ctx).
		Where("synced_folders IS NOT NULL AND synced_folders != ''").
		Order("last_synced_at ASC NULLS FIRST").
		Find(&accounts).Error
	return accounts, err
}

func (s *Store) UpdateAccount(ctx context.Context, account *domain.MailAccount) error {
	return s.db.WithContext(ctx).Save(account).Error
}

// DeleteAccount removes account and every message mirrored under it.
// Messages are hard-deleted here (unlike SoftDelete) since the account
// itself is gone and nothing can serve them back to the owner anymore.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.MailAccount{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return mailerr.ErrNotFound
		}
		return nil
	})
}

// ========== Message ==========

func (s *Store) UpsertMessage(ctx context.Context, msg *domain.Message) error {
	err := s.db.WithContext(ctx).Create(msg).Error
	if isUniqueViolation(err) {
		// Already mirrored by a previous attempt of the same job;
		// retries of the same fetch range must be idempotent (§4.5, §7).
		return nil
	}
	return err
}

func (s *Store) ListMessages(ctx context.Context, filter domain.MessageFilter) (domain.MessagePage, error) {
	filter.Normalize()

	query := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("account_id = ? AND deleted_at IS NULL", filter.AccountID)
	if filter.Folder != "" {
		query = query.Where("folder = ?", filter.Folder)
	}
	if filter.IsRead != nil {
		query = query.Where("is_read = ?", *filter.IsRead)
	}
	if filter.FromDate != nil {
		query = query.Where("received_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("received_at <= ?", *filter.ToDate)
	}

	return paginate(query, filter.Page, filter.Limit)
}

func (s *Store) GetMessage(ctx context.Context, accountID, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.WithContext(ctx).
		Where("id = ? AND account_id = ? AND deleted_at IS NULL", id, accountID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mailerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Store) MarkRead(ctx context.Context, accountID, id string, isRead bool) error {
	result := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Update("is_read", isRead)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mailerr.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, accountID, id string) error {
	result := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND account_id = ? AND deleted_at IS NULL", id, accountID).
		Update("deleted_at", time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mailerr.ErrNotFound
	}
	return nil
}

func (s *Store) Search(ctx context.Context, q domain.SearchQuery) (domain.MessagePage, error) {
	q.Normalize()

	query := s.db.WithContext(ctx).Model(&domain.Message{}).
		Joins("JOIN mail_accounts ON mail_accounts.id = messages.account_id").
		Where("mail_accounts.user_id = ? AND messages.deleted_at IS NULL", q.UserID)

	if q.Text != "" {
		query = query.Where("messages.search_vector @@ plainto_tsquery('english', ?)", q.Text).
			Order(clause.Expr{
				SQL:  "ts_rank(messages.search_vector, plainto_tsquery('english', ?)) DESC, messages.received_at DESC",
				Vars: []any{q.Text},
			})
	} else {
		query = query.Order("messages.received_at DESC")
	}
	if q.Sender != "" {
		query = query.Where(`messages."from" ILIKE ?`, "%"+q.Sender+"%")
	}

	return paginate(query, q.Page, q.Limit)
}

func (s *Store) HighestUID(ctx context.Context, accountID, folder string) (int, error) {
	var maxUID *int
	err := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Select("MAX(uid)").Scan(&maxUID).Error
	if err != nil {
		return 0, err
	}
	if maxUID == nil {
		return 0, nil
	}
	return *maxUID, nil
}

func (s *Store) HighestReceivedAt(ctx context.Context, accountID, folder string) (time.Time, error) {
	var maxReceivedAt *time.Time
	err := s.db.WithContext(ctx).Model(&domain.Message{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Select("MAX(received_at)").Scan(&maxReceivedAt).Error
	if err != nil {
		return time.Time{}, err
	}
	if maxReceivedAt == nil {
		return time.Time{}, nil
	}
	return *maxReceivedAt, nil
}

// ========== Attachment ==========

func (s *Store) SaveAttachmentMeta(ctx context.Context, att *domain.Attachment) error {
	return s.db.WithContext(ctx).Create(att).Error
}

func (s *Store) ListAttachments(ctx context.Context, messageID string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&out).Error
	return out, err
}

// ========== helpers ==========

func paginate(query *gorm.DB, page, limit int) (domain.MessagePage, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return domain.MessagePage{}, fmt.Errorf("counting results: %w", err)
	}

	var messages []domain.Message
	offset := (page - 1) * limit
	if err := query.Limit(limit).Offset(offset).Find(&messages).Error; err != nil {
		return domain.MessagePage{}, fmt.Errorf("querying results: %w", err)
	}

	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}

	return domain.MessagePage{
		Messages:   messages,
		Total:      int(total),
		Page:       page,
		PageSize:   limit,
		TotalPages: totalPages,
	}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}
