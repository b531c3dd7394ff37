package store

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// User is one record in the user registry.
type User struct {
	Username      string `json:"username"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	JoinDate      string `json:"join_date"`
	DownloadCount int    `json:"download_count"`
}

// UserStore is the persisted registry of everyone who has talked to the bot.
type UserStore struct {
	mu     sync.Mutex
	path   string
	users  map[string]*User
	logger *zap.Logger
}

// NewUserStore loads the registry from path, tolerating a missing file.
func NewUserStore(path string, logger *zap.Logger) (*UserStore, error) {
	s := &UserStore{
		path:   path,
		users:  make(map[string]*User),
		logger: logger,
	}
	if err := loadJSON(path, &s.users); err != nil {
		return nil, err
	}
	return s, nil
}

// Touch registers a user on first contact. Known users are left untouched so
// the join date and download count survive.
func (s *UserStore) Touch(userID int64, username, firstName, lastName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.FormatInt(userID, 10)
	if _, ok := s.users[key]; ok {
		return
	}

	s.users[key] = &User{
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		JoinDate:  time.Now().Format(time.RFC3339),
	}
	s.flushLocked()
}

// IncrementDownloads bumps the download counter for a user. Unknown users are
// ignored.
func (s *UserStore) IncrementDownloads(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.FormatInt(userID, 10)
	user, ok := s.users[key]
	if !ok {
		return
	}
	user.DownloadCount++
	s.flushLocked()
}

// Get returns a copy of a user record.
func (s *UserStore) Get(userID int64) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[strconv.FormatInt(userID, 10)]
	if !ok {
		return User{}, false
	}
	return *user, true
}

// Count reports how many users are registered.
func (s *UserStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// IDs returns every registered user ID, for broadcast fan-out.
func (s *UserStore) IDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.users))
	for key := range s.users {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// flushLocked persists the registry. Write failures are logged and swallowed:
// losing the latest mutation on restart is accepted, crashing the caller is
// not.
func (s *UserStore) flushLocked() {
	if err := saveJSON(s.path, s.users); err != nil {
		s.logger.Error("failed to persist user registry", zap.Error(err))
	}
}
