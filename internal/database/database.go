package database

import (
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("key not found")

// Database is a string key-value store. An expiration of 0 keeps the key forever.
type Database interface {
	Get(key string) (data string, err error)
	Set(key string, data string, expiration time.Duration) (err error)
	Delete(key string) (err error)
	Close() error
}
