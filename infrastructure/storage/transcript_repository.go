package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"relaychat/domain"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type ITranscriptRepository interface {
	Append(room string, message domain.Message) error
	GetMessages(room string, cursor *string) ([]domain.Message, *string, error)
	History(room string, n int) ([]domain.Message, error)
}

// TranscriptRepository keeps the messages of every room seen by this
// process. It is backed by an in-memory badger instance and nothing
// survives a restart.
type TranscriptRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

// OpenInMemory opens a badger instance that never touches the disk.
func OpenInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory transcript store: %w", err)
	}
	return db, nil
}

func NewTranscriptRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *TranscriptRepository {
	return &TranscriptRepository{db: db, log: log, limitMessages: limitMessages}
}

type diskSender struct {
	ID          string `json:"id"`
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName,omitempty"`
	IsLocal     bool   `json:"isLocal"`
}

type diskMessage struct {
	ID     string     `json:"id"`
	Text   string     `json:"text"`
	Sender diskSender `json:"sender"`
	At     int64      `json:"at"`
	Kind   string     `json:"kind"`
}

// roomPrefix quotes the room so that "a" never prefixes "a:b".
func roomPrefix(room string) string {
	return fmt.Sprintf("msg:%q:", room)
}

// Append stores a message under "msg:{room}:{timestamp_padded}:{id}".
// The 19-digit padding keeps lexicographical order chronological; the id
// separates messages stamped with the same nanosecond.
func (r *TranscriptRepository) Append(room string, message domain.Message) error {
	key := fmt.Sprintf("%s%019d:%s", roomPrefix(room), message.Timestamp.UnixNano(), message.ID)
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetMessages pages backwards through a room, newest first. A nil cursor
// starts from the most recent message; the returned cursor resumes after
// the last message of the page.
func (r *TranscriptRepository) GetMessages(room string, cursor *string) ([]domain.Message, *string, error) {
	var values [][]byte
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := roomPrefix(room)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Past the newest possible key, then walk backwards
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(values) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(values))
	for _, v := range values {
		var dm diskMessage
		if err := json.Unmarshal(v, &dm); err != nil {
			return nil, nil, fmt.Errorf("decode transcript entry: %w", err)
		}
		messages = append(messages, toMessage(dm))
	}
	return messages, &lastKey, nil
}

// History returns the last n messages of a room in chronological order.
func (r *TranscriptRepository) History(room string, n int) ([]domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	var collected []domain.Message
	var cursor *string
	for len(collected) < n {
		page, next, err := r.GetMessages(room, cursor)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		collected = append(collected, page...)
		if r.limitMessages == nil {
			break
		}
		cursor = next
	}
	if len(collected) > n {
		collected = collected[:n]
	}
	slices.Reverse(collected)
	return collected, nil
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:   m.ID,
		Text: m.Text,
		Sender: diskSender{
			ID:          m.Sender.ID,
			Identity:    m.Sender.Identity,
			DisplayName: m.Sender.DisplayName,
			IsLocal:     m.Sender.IsLocal,
		},
		At:   m.Timestamp.UnixNano(),
		Kind: string(m.Kind),
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:   dm.ID,
		Text: dm.Text,
		Sender: domain.Sender{
			ID:          dm.Sender.ID,
			Identity:    dm.Sender.Identity,
			DisplayName: dm.Sender.DisplayName,
			IsLocal:     dm.Sender.IsLocal,
		},
		Timestamp: time.Unix(0, dm.At).UTC(),
		Kind:      domain.MessageKind(dm.Kind),
	}
}
