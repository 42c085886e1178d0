package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"relaychat/domain"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MemoryRepository is the assistant's conversation memory. It implements
// contract.ConversationMemory on the same in-memory badger instance kind as
// the transcript, so what the assistant remembers ends with the process.
type MemoryRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMemoryRepository(db *badger.DB, log *slog.Logger) *MemoryRepository {
	return &MemoryRepository{db: db, log: log}
}

type diskExchange struct {
	Identity string `json:"identity"`
	Prompt   string `json:"prompt"`
	Reply    string `json:"reply"`
	At       int64  `json:"at"`
}

func identityPrefix(identity string) string {
	return fmt.Sprintf("mem:%q:", identity)
}

// Remember stores an exchange under "mem:{identity}:{timestamp_padded}:{uuid}".
func (r *MemoryRepository) Remember(exchange domain.Exchange) error {
	key := fmt.Sprintf("%s%019d:%s", identityPrefix(exchange.Identity), exchange.At.UnixNano(), uuid.NewString())
	bytes, err := json.Marshal(diskExchange{
		Identity: exchange.Identity,
		Prompt:   exchange.Prompt,
		Reply:    exchange.Reply,
		At:       exchange.At.UnixNano(),
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Recall walks the identity's exchanges backwards and returns the last n in
// chronological order.
func (r *MemoryRepository) Recall(identity string, n int) ([]domain.Exchange, error) {
	if n <= 0 {
		return nil, nil
	}
	var exchanges []domain.Exchange
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := identityPrefix(identity)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append([]byte(prefixStr), '~')); it.ValidForPrefix(prefix) && len(exchanges) < n; it.Next() {
			var de diskExchange
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &de)
			}); err != nil {
				return fmt.Errorf("decode memory entry: %w", err)
			}
			exchanges = append(exchanges, domain.Exchange{
				Identity: de.Identity,
				Prompt:   de.Prompt,
				Reply:    de.Reply,
				At:       time.Unix(0, de.At).UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(exchanges)
	r.log.Debug("Memory recalled", "identity", identity, "exchanges", len(exchanges))
	return exchanges, nil
}
