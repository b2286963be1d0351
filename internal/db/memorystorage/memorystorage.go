package memorystorage

import (
	"context"

	"github.com/patric-chuzhbe/todoapp/internal/db/jsondb"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

// MemoryStorage is the JSON storage without a backing file.
type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.CacheStruct{
				Users: []user.User{},
				Tasks: models.Tasks{},
			},
		},
	}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
