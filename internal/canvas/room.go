package canvas

import "drawboard/internal/models"

// palette is the fixed set of colors handed out to joining users, taken in
// round-robin order so assignment is stable and testable.
var palette = []string{
	"#e6194B", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
}

// Room is one isolated collaboration session: a user roster plus the
// room's action log.
type Room struct {
	Name  string
	Log   *ActionLog
	users map[string]*models.User
	joins int // palette cursor
}

func NewRoom(name string) *Room {
	return &Room{
		Name:  name,
		Log:   NewActionLog(),
		users: make(map[string]*models.User),
	}
}

// AddUser registers a user and assigns the next palette color. The color
// is stable for the life of the session.
func (r *Room) AddUser(id string) *models.User {
	u := &models.User{
		ID:    id,
		Color: palette[r.joins%len(palette)],
	}
	r.joins++
	r.users[id] = u
	return u
}

// RemoveUser deregisters a user. Unknown ids are ignored.
func (r *Room) RemoveUser(id string) {
	delete(r.users, id)
}

// User returns the registered user, or nil.
func (r *Room) User(id string) *models.User {
	return r.users[id]
}

// UserList snapshots the roster for init and users_update payloads.
func (r *Room) UserList() []models.User {
	list := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		list = append(list, *u)
	}
	return list
}

// UserCount reports the current roster size.
func (r *Room) UserCount() int {
	return len(r.users)
}
