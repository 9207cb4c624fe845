//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

const maxTxnAttempts = 16

type IMessageRepository interface {
	Append(message domain.Message) error
	Get(id string) (*domain.Message, error)
	Count(scope domain.Scope) (int, error)
	Oldest(scope domain.Scope, n int) ([]string, error)
	Overflow(scope domain.Scope, limit int) (int, []string, error)
	DeleteByIDs(ids []string) (int, error)
	Page(channelID string, cursor *string, limit int) ([]domain.Message, error)
	MergeChannelHashtags(channelID string, tags []string, capacity int) ([]string, error)
	ChannelHashtags(channelID string) ([]string, error)
	Usage() (map[domain.Scope]int, error)
}

// MessageRepository stores messages in BadgerDB under three keys:
//
//	message:{id}                          -> DiskMessage
//	channel:{channel_id}:msg:{ns}:{id}    -> index, empty value
//	user:{user_id}:msg:{ns}:{id}          -> index, empty value
//
// The 19-digit zero padded timestamp followed by the ULID makes the
// lexicographical key order equal to the (createdAt, id) order.
// Channel hashtags live under channel:{channel_id}:hashtags.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type DiskMessage struct {
	ID        string   `json:"id"`
	ChannelID string   `json:"channel_id"`
	UserID    string   `json:"user_id"`
	ParentID  *string  `json:"parent_id,omitempty"`
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	Hashtags  []string `json:"hashtags"`
	At        int64    `json:"at"`
}

func messageKey(id string) []byte {
	return []byte("message:" + id)
}

func scopePrefix(scope domain.Scope) []byte {
	return []byte(fmt.Sprintf("%s:%s:msg:", scope.Kind, scope.ID))
}

func indexKey(scope domain.Scope, at time.Time, id string) []byte {
	return append(scopePrefix(scope), []byte(fmt.Sprintf("%019d:%s", at.UnixNano(), id))...)
}

func hashtagsKey(channelID string) []byte {
	return []byte(fmt.Sprintf("channel:%s:hashtags", channelID))
}

// idFromIndexKey returns the trailing id of an index key.
func idFromIndexKey(key []byte) string {
	k := string(key)
	return k[strings.LastIndexByte(k, ':')+1:]
}

// Append writes the message and both of its indexes atomically.
func (m MessageRepository) Append(message domain.Message) error {
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ID), bytes); err != nil {
			return err
		}
		if err := txn.Set(indexKey(domain.ChannelScope(message.ChannelID), message.CreatedAt, message.ID), nil); err != nil {
			return err
		}
		return txn.Set(indexKey(domain.UserScope(message.UserID), message.CreatedAt, message.ID), nil)
	})
}

// Get returns nil when no message has this id.
func (m MessageRepository) Get(id string) (*domain.Message, error) {
	var message *domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		found, err := getMessage(txn, id)
		message = found
		return err
	})
	return message, err
}

// Count walks the scope index without fetching values.
func (m MessageRepository) Count(scope domain.Scope) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := scopePrefix(scope)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Oldest returns up to n ids of the scope in ascending (createdAt, id) order.
func (m MessageRepository) Oldest(scope domain.Scope, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ids := make([]string, 0, n)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := scopePrefix(scope)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(ids) < n; it.Next() {
			ids = append(ids, idFromIndexKey(it.Item().Key()))
		}
		return nil
	})
	return ids, err
}

// Overflow counts the scope and selects its oldest ids beyond limit from the
// same snapshot, so the selection always matches the count it derives from.
func (m MessageRepository) Overflow(scope domain.Scope, limit int) (int, []string, error) {
	var all []string
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := scopePrefix(scope)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			all = append(all, idFromIndexKey(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	if len(all) <= limit {
		return len(all), nil, nil
	}
	return len(all), all[:len(all)-limit], nil
}

// DeleteByIDs removes exactly the given messages and their index entries.
// Ids that are already gone are skipped, so concurrent user and channel
// enforcement may safely select the same row.
func (m MessageRepository) DeleteByIDs(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted := 0
	err := m.update(func(txn *badger.Txn) error {
		deleted = 0
		for _, id := range lo.Uniq(ids) {
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message == nil {
				continue
			}
			for _, key := range [][]byte{
				messageKey(id),
				indexKey(domain.ChannelScope(message.ChannelID), message.CreatedAt, id),
				indexKey(domain.UserScope(message.UserID), message.CreatedAt, id),
			} {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Page returns up to limit messages of the channel, newest first.
// With a cursor, the first returned message is the one right after the cursor
// in descending order. A cursor whose message is gone resumes before the
// timestamp of its ULID. A cursor that is not a ULID, or one from another
// channel, gives an empty page.
func (m MessageRepository) Page(channelID string, cursor *string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		channel := domain.ChannelScope(channelID)
		prefix := scopePrefix(channel)

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible key, the reverse iterator then walks back in time
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		default:
			from, err := getMessage(txn, *cursor)
			if err != nil {
				return err
			}
			switch {
			case from == nil:
				// Evicted cursor: resume from the millisecond its id carries
				id, err := ulid.ParseStrict(*cursor)
				if err != nil {
					m.log.Debug("Unknown cursor", "channel_id", channelID, "cursor", *cursor)
					return nil
				}
				seekKey = indexKey(channel, ulid.Time(id.Time()), "")
			case from.ChannelID != channelID:
				m.log.Debug("Cursor from another channel", "channel_id", channelID, "cursor", *cursor)
				return nil
			default:
				seekKey = indexKey(channel, from.CreatedAt, from.ID)
			}
		}

		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			id := idFromIndexKey(it.Item().Key())
			message, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message == nil {
				m.log.Warn("Dangling channel index entry", "channel_id", channelID, "id", id)
				continue
			}
			messages = append(messages, *message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MergeChannelHashtags folds tags into the channel FIFO list and returns the result.
func (m MessageRepository) MergeChannelHashtags(channelID string, tags []string, capacity int) ([]string, error) {
	var merged []string
	if len(tags) == 0 {
		return m.ChannelHashtags(channelID)
	}
	err := m.update(func(txn *badger.Txn) error {
		existing, err := getHashtags(txn, channelID)
		if err != nil {
			return err
		}
		merged = domain.MergeHashtags(existing, tags, capacity)
		bytes, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return txn.Set(hashtagsKey(channelID), bytes)
	})
	return merged, err
}

func (m MessageRepository) ChannelHashtags(channelID string) ([]string, error) {
	var tags []string
	err := m.db.View(func(txn *badger.Txn) error {
		found, err := getHashtags(txn, channelID)
		tags = found
		return err
	})
	return tags, err
}

// Usage counts messages per scope. Meant for inspection tooling, it scans every index.
func (m MessageRepository) Usage() (map[domain.Scope]int, error) {
	usage := make(map[domain.Scope]int)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for _, kind := range []domain.ScopeKind{domain.ScopeChannel, domain.ScopeUser} {
			prefix := []byte(string(kind) + ":")
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				parts := strings.SplitN(string(it.Item().Key()), ":", 4)
				if len(parts) < 4 || parts[2] != "msg" {
					continue
				}
				usage[domain.Scope{Kind: kind, ID: parts[1]}]++
			}
		}
		return nil
	})
	return usage, err
}

// update retries fn when badger reports a write conflict with a concurrent transaction.
func (m MessageRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		err = m.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		m.log.Debug("Transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func getMessage(txn *badger.Txn, id string) (*domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var disk DiskMessage
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &disk)
	}); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", id, err)
	}
	return lo.ToPtr(toMessage(disk)), nil
}

func getHashtags(txn *badger.Txn, channelID string) ([]string, error) {
	item, err := txn.Get(hashtagsKey(channelID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var tags []string
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &tags)
	})
	return tags, err
}

func fromMessage(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:        message.ID,
		ChannelID: message.ChannelID,
		UserID:    message.UserID,
		ParentID:  message.ParentID,
		Content:   message.Content,
		Type:      string(message.Type),
		Hashtags:  message.Hashtags,
		At:        message.CreatedAt.UnixNano(),
	}
}

func toMessage(disk DiskMessage) domain.Message {
	hashtags := disk.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	return domain.Message{
		ID:        disk.ID,
		ChannelID: disk.ChannelID,
		UserID:    disk.UserID,
		ParentID:  disk.ParentID,
		Content:   disk.Content,
		Type:      domain.MessageType(disk.Type),
		Hashtags:  hashtags,
		CreatedAt: time.Unix(0, disk.At).UTC(),
	}
}
