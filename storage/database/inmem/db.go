package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/device"
)

type (
	// DB is a process-local store used in tests and in DEV when `database.engine` is "inmem".
	DB struct {
		chat   *chatTables
		tokens *tokenTable
	}

	chatTables struct {
		threads  map[string]*chat.Thread
		messages map[string]*chat.Message
		order    []string // message ids, insertion order
		mutex    sync.RWMutex
	}

	tokenTable struct {
		table map[string]*device.Token // by id
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		chat: &chatTables{
			threads:  make(map[string]*chat.Thread),
			messages: make(map[string]*chat.Message),
		},
		tokens: &tokenTable{table: make(map[string]*device.Token)},
	}
}
