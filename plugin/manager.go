package plugin

import (
	"github.com/quailyquaily/plugbot/i18n"
	"github.com/quailyquaily/plugbot/store"
)

// ManagerNamespace holds the dispatcher's own per-chat state.
const ManagerNamespace = "manager"

func ManagerTree() store.Tree {
	return store.Inner(map[string]store.Tree{
		ManagerNamespace: store.Namespaces(
			store.Declare[Permission]("perm", Anyone, "chat", "user"),
			store.Declare[string]("locale", func() string { return i18n.RawLocale }, "chat"),
		),
	})
}

// ManagerDB is the typed view over an opened manager scope.
type ManagerDB struct {
	scope  *store.Scope
	perm   store.Table[Permission]
	locale store.Table[string]
}

func NewManagerDB(scope *store.Scope) *ManagerDB {
	return &ManagerDB{
		scope:  scope,
		perm:   store.TableOf[Permission](scope.Lookup("perm")),
		locale: store.TableOf[string](scope.Lookup("locale")),
	}
}

func (m *ManagerDB) Scope() *store.Scope {
	return m.scope
}

// Permission is the user's recorded level in chat; anyone when unset.
func (m *ManagerDB) Permission(chatID, userID string) (Permission, error) {
	p, ok, err := m.perm.Get(chatID, userID)
	if err != nil || !ok {
		return Anyone(), err
	}
	return p, nil
}

func (m *ManagerDB) SetPermission(chatID, userID string, p Permission) error {
	return m.perm.Set(p, chatID, userID)
}

// Permissions lists the users with a recorded level in chat.
func (m *ManagerDB) Permissions(chatID string) (map[string]Permission, error) {
	users, err := m.perm.Keys(chatID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Permission, len(users))
	for _, u := range users {
		p, err := m.Permission(chatID, u)
		if err != nil {
			return nil, err
		}
		out[u] = p
	}
	return out, nil
}

// Locale returns the chat's locale, recording raw the first time.
func (m *ManagerDB) Locale(chatID string) (string, error) {
	return m.locale.GetOrInsert(nil, chatID)
}

func (m *ManagerDB) SetLocale(chatID, locale string) error {
	return m.locale.Set(locale, chatID)
}
