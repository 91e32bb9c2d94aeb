// Package users is the in-memory user collection served under /users.
package users

import "sync"

// User is one record. Age is kept exactly as the client sent it.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Age  string `json:"age"`
}

// Store holds the users of one server process. IDs start at 1 and are
// never reused. All methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	users  []User
	nextID int
}

func NewStore() *Store {
	return &Store{nextID: 1}
}

// Create stores a new user and returns it with its assigned ID.
func (s *Store) Create(name, age string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextID == 0 {
		s.nextID = 1
	}
	u := User{ID: s.nextID, Name: name, Age: age}
	s.nextID++
	s.users = append(s.users, u)
	return u
}

// List returns a copy of all users in creation order. It is never nil.
func (s *Store) List() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Store) Get(id int) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// IDs are dense, so the record for id sits at index id-1.
	if id < 1 || id > len(s.users) {
		return User{}, false
	}
	return s.users[id-1], true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
