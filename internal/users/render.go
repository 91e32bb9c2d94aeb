package users

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The HTML pages embed names and ages unescaped.

type userList []User

func (l userList) RenderHTML() []byte {
	var b strings.Builder
	b.WriteString(`<html><head><meta charset="utf-8"></head><body>`)
	fmt.Fprintf(&b, "<div>Users (%d)</div><ul>", len(l))
	for _, u := range l {
		fmt.Fprintf(&b, "<li>#%d %s, %s</li>", u.ID, u.Name, u.Age)
	}
	b.WriteString("</ul></body></html>")
	return []byte(b.String())
}

func (l userList) RenderJSON() ([]byte, error) {
	if l == nil {
		l = userList{}
	}
	return json.Marshal([]User(l))
}

type userView User

func (u userView) RenderHTML() []byte {
	return []byte(fmt.Sprintf(`<html><head><meta charset="utf-8"></head><body>User #%d %s, %s</body></html>`,
		u.ID, u.Name, u.Age))
}

func (u userView) RenderJSON() ([]byte, error) {
	return json.Marshal(User(u))
}
