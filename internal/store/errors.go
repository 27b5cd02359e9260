package store

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrBusy marks a write that lost the race for the database write lock.
// It is transient: the whole statement batch can be retried.
var ErrBusy = errors.New("database is busy")

// IsBusy reports whether err is a transient contention error.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// classify maps SQLITE_BUSY and SQLITE_LOCKED (including their extended
// codes) onto ErrBusy and leaves every other error untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errors.Join(ErrBusy, err)
		}
	}
	return err
}
