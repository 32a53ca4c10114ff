// Package memory implements the mirror store interface in-process,
// for unit tests that would otherwise need a live Postgres instance.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
)

// Store is a goroutine-safe in-memory mirror store.
type Store struct {
	mu sync.RWMutex

	accounts map[string]*domain.MailAccount
	messages map[string]*domain.Message // id -> message

	// uidIndex enforces the (accountId, uid, folder) uniqueness
	// constraint the Postgres backend gets for free from its index.
	uidIndex map[string]string // "accountId:folder:uid" -> messageID

	attachments map[string][]*domain.Attachment // messageID -> attachments
}

func New() *Store {
	return &Store{
		accounts:    make(map[string]*domain.MailAccount),
		messages:    make(map[string]*domain.Message),
		uidIndex:    make(map[string]string),
		attachments: make(map[string][]*domain.Attachment),
	}
}

// ========== Account ==========

func (s *Store) CreateAccount(ctx context.Context, account *domain.MailAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.UserID == account.UserID && existing.Email == account.Email {
			return mailerr.ErrAlreadyLinked
		}
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, mailerr.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, userID, email string) (*domain.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.UserID == userID && a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, mailerr.ErrNotFound
}

func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]domain.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MailAccount
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListAccountsDueForSync(ctx context.Context) ([]domain.MailAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MailAccount
	for _, a := range s.accounts {
		if len(a.SyncedFolders) == 0 {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastSyncedAt, out[j].LastSyncedAt
		if ai == nil {
			return true
		}
		if aj == nil {
			return false
		}
		return ai.Before(*aj)
	})
	return out, nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *domain.MailAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; !ok {
		return mailerr.ErrNotFound
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return mailerr.ErrNotFound
	}
	delete(s.accounts, id)
	for msgID, msg := range s.messages {
		if msg.AccountID == id {
			delete(s.messages, msgID)
			delete(s.uidIndex, uidKey(msg.AccountID, msg.Folder, msg.UID))
			delete(s.attachments, msgID)
		}
	}
	return nil
}

// ========== Message ==========

func (s *Store) UpsertMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := uidKey(msg.AccountID, msg.Folder, msg.UID)
	if _, exists := s.uidIndex[key]; exists {
		return nil // idempotent: already mirrored (§4.5, §7)
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	s.uidIndex[key] = msg.ID
	return nil
}

func (s *Store) ListMessages(ctx context.Context, filter domain.MessageFilter) (domain.MessagePage, error) {
	filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Message
	for _, m := range s.messages {
		if m.AccountID != filter.AccountID || m.DeletedAt != nil {
			continue
		}
		if filter.Folder != "" && m.Folder != filter.Folder {
			continue
		}
		if filter.IsRead != nil && m.IsRead != *filter.IsRead {
			continue
		}
		if filter.FromDate != nil && m.ReceivedAt.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && m.ReceivedAt.After(*filter.ToDate) {
			continue
		}
		matched = append(matched, *m)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ReceivedAt.After(matched[j].ReceivedAt) })
	return paginate(matched, filter.Page, filter.Limit), nil
}

func (s *Store) GetMessage(ctx context.Context, accountID, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID || m.DeletedAt != nil {
		return nil, mailerr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Store) MarkRead(ctx context.Context, accountID, id string, isRead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID {
		return mailerr.ErrNotFound
	}
	m.IsRead = isRead
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, accountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.AccountID != accountID || m.DeletedAt != nil {
		return mailerr.ErrNotFound
	}
	deletedAt := time.Now().UTC()
	m.DeletedAt = &deletedAt
	return nil
}

func (s *Store) Search(ctx context.Context, q domain.SearchQuery) (domain.MessagePage, error) {
	q.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	accountIDs := make(map[string]struct{})
	for _, a := range s.accounts {
		if a.UserID == q.UserID {
			accountIDs[a.ID] = struct{}{}
		}
	}

	var matched []domain.Message
	text := strings.ToLower(q.Text)
	sender := strings.ToLower(q.Sender)
	for _, m := range s.messages {
		if _, ok := accountIDs[m.AccountID]; !ok || m.DeletedAt != nil {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(m.Subject), text) &&
			!strings.Contains(strings.ToLower(m.Body), text) &&
			!strings.Contains(strings.ToLower(m.From), text) {
			continue
		}
		if sender != "" && !strings.Contains(strings.ToLower(m.From), sender) {
			continue
		}
		matched = append(matched, *m)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ReceivedAt.After(matched[j].ReceivedAt) })
	return paginate(matched, q.Page, q.Limit), nil
}

func (s *Store) HighestUID(ctx context.Context, accountID, folder string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, m := range s.messages {
		if m.AccountID == accountID && m.Folder == folder && m.UID > highest {
			highest = m.UID
		}
	}
	return highest, nil
}

func (s *Store) HighestReceivedAt(ctx context.Context, accountID, folder string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest time.Time
	for _, m := range s.messages {
		if m.AccountID == accountID && m.Folder == folder && m.ReceivedAt.After(highest) {
			highest = m.ReceivedAt
		}
	}
	return highest, nil
}

// ========== Attachment ==========

func (s *Store) SaveAttachmentMeta(ctx context.Context, att *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	cp := *att
	s.attachments[att.MessageID] = append(s.attachments[att.MessageID], &cp)
	return nil
}

func (s *Store) ListAttachments(ctx context.Context, messageID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Attachment
	for _, a := range s.attachments[messageID] {
		out = append(out, *a)
	}
	return out, nil
}

// ========== helpers ==========

func uidKey(accountID, folder string, uid int) string {
	return accountID + ":" + folder + ":" + strconv.Itoa(uid)
}

func paginate(all []domain.Message, page, limit int) domain.MessagePage {
	total := len(all)
	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return domain.MessagePage{
		Messages:   append([]domain.Message{}, all[start:end]...),
		Total:      total,
		Page:       page,
		PageSize:   limit,
		TotalPages: totalPages,
	}
}
