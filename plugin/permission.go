package plugin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindAnyone Kind = iota
	KindCustom
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindAnyone:
		return "anyone"
	case KindCustom:
		return "custom"
	case KindAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < KindAnyone || k > KindAdmin {
		return nil, fmt.Errorf("plugin: unknown permission kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "anyone":
		*k = KindAnyone
	case "custom":
		*k = KindCustom
	case "admin":
		*k = KindAdmin
	default:
		return fmt.Errorf("plugin: unknown permission kind %q", string(b))
	}
	return nil
}

// Permission is both a handler's requirement and a user's recorded level.
// Order: anyone < custom(n) < admin, customs by level.
type Permission struct {
	Kind  Kind `json:"kind"`
	Level int  `json:"lv,omitempty"`
}

func Anyone() Permission { return Permission{Kind: KindAnyone} }
func Admin() Permission { return Permission{Kind: KindAdmin} }
func Custom(level int) Permission { return Permission{Kind: KindCustom, Level: level} }

// Compare returns -1, 0 or 1 as p is below, equal to or above q.
func (p Permission) Compare(q Permission) int {
	if p.Kind != q.Kind {
		if p.Kind < q.Kind {
			return -1
		}
		return 1
	}
	if p.Kind != KindCustom || p.Level == q.Level {
		return 0
	}
	if p.Level < q.Level {
		return -1
	}
	return 1
}

func (p Permission) Less(q Permission) bool {
	return p.Compare(q) < 0
}

func (p Permission) IsAnyone() bool {
	return p.Kind == KindAnyone
}

func (p Permission) String() string {
	if p.Kind == KindCustom {
		return "custom(" + strconv.Itoa(p.Level) + ")"
	}
	return p.Kind.String()
}

// ParsePermission accepts anyone, admin, custom(N), custom:N or a bare N.
func ParsePermission(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "anyone":
		return Anyone(), nil
	case "admin":
		return Admin(), nil
	}
	num := s
	switch {
	case strings.HasPrefix(s, "custom(") && strings.HasSuffix(s, ")"):
		num = strings.TrimSuffix(strings.TrimPrefix(s, "custom("), ")")
	case strings.HasPrefix(s, "custom:"):
		num = strings.TrimPrefix(s, "custom:")
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return Permission{}, fmt.Errorf("plugin: bad permission %q", s)
	}
	return Custom(n), nil
}

func (p *Permission) UnmarshalJSON(b []byte) error {
	// Older files may hold the short string form.
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := ParsePermission(s)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}
	type raw Permission
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*p = Permission(r)
	return nil
}
