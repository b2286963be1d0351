// Package jsondb is a file-backed storage. The whole dataset is kept in
// memory and flushed to a JSON file on Close.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/todoapp/internal/db/storage"
	"github.com/patric-chuzhbe/todoapp/internal/models"
	"github.com/patric-chuzhbe/todoapp/internal/user"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

// CacheStruct is the on-disk layout. Slices keep insertion order, which
// is the order tasks are listed in.
type CacheStruct struct {
	Users []user.User
	Tasks models.Tasks
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Users": [],
	"Tasks": []
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
	}

	err := parseJSONFile(db.fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := initDBFile(fileName); err != nil {
			return nil, err
		}
		if err := parseJSONFile(db.fileName, &db.Cache); err != nil {
			return nil, err
		}
	}

	return db, nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close flushes the dataset to the file.
func (db *JSONDB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.Cache)
}

func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.Cache.Users {
		if existing.Username == usr.Username {
			return "", storage.ErrUserAlreadyExists
		}
	}

	created := *usr
	created.ID = uuid.New().String()
	db.Cache.Users = append(db.Cache.Users, created)

	return created.ID, nil
}

func (db *JSONDB) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, usr := range db.Cache.Users {
		if usr.Username == username {
			found := usr
			return &found, nil
		}
	}

	return nil, storage.ErrNotFound
}

func (db *JSONDB) GetUsers(ctx context.Context) ([]user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make([]user.User, len(db.Cache.Users))
	copy(result, db.Cache.Users)

	return result, nil
}

// DeleteUser removes the user and their tasks under a single lock.
func (db *JSONDB) DeleteUser(ctx context.Context, userID string) (*user.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, usr := range db.Cache.Users {
		if usr.ID == userID {
			db.Cache.Users = append(db.Cache.Users[:i], db.Cache.Users[i+1:]...)
			db.Cache.Tasks = funk.Filter(
				[]models.Task(db.Cache.Tasks),
				func(task models.Task) bool { return task.Username != usr.Username },
			).([]models.Task)
			return &usr, nil
		}
	}

	return nil, storage.ErrNotFound
}

func (db *JSONDB) InsertTask(ctx context.Context, task *models.Task) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	created := *task
	created.ID = uuid.New().String()
	db.Cache.Tasks = append(db.Cache.Tasks, created)

	return created.ID, nil
}

func (db *JSONDB) GetTasksByUsername(ctx context.Context, username string) (models.Tasks, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	owned := funk.Filter(
		[]models.Task(db.Cache.Tasks),
		func(task models.Task) bool { return task.Username == username },
	).([]models.Task)

	return models.Tasks(owned), nil
}

func (db *JSONDB) UpdateTaskText(ctx context.Context, taskID, username, text string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.findTask(taskID, username)
	if idx < 0 {
		return storage.ErrNotFound
	}
	db.Cache.Tasks[idx].Task = text

	return nil
}

func (db *JSONDB) DeleteTask(ctx context.Context, taskID, username string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := db.findTask(taskID, username)
	if idx < 0 {
		return storage.ErrNotFound
	}
	db.Cache.Tasks = append(db.Cache.Tasks[:idx], db.Cache.Tasks[idx+1:]...)

	return nil
}

// DeleteOrphanTasks removes the tasks owned by one of the given usernames
// when no account with that username exists, and reports how many were
// removed. Tasks of a re-registered username are kept.
func (db *JSONDB) DeleteOrphanTasks(ctx context.Context, usernames []string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	registered := make(map[string]struct{}, len(db.Cache.Users))
	for _, usr := range db.Cache.Users {
		registered[usr.Username] = struct{}{}
	}

	kept := make(models.Tasks, 0, len(db.Cache.Tasks))
	for _, task := range db.Cache.Tasks {
		_, owned := registered[task.Username]
		if owned || !funk.ContainsString(usernames, task.Username) {
			kept = append(kept, task)
		}
	}
	removed := int64(len(db.Cache.Tasks) - len(kept))
	db.Cache.Tasks = kept

	return removed, nil
}

func (db *JSONDB) findTask(taskID, username string) int {
	for i, task := range db.Cache.Tasks {
		if strings.EqualFold(task.ID, taskID) && task.Username == username {
			return i
		}
	}

	return -1
}
