// Package pick collects the members seen talking in a chat and hands each
// user one random member per day.
package pick

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/plugin"
	"github.com/quailyquaily/plugbot/store"
)

const (
	Name       = "pick"
	dateLayout = "2006-01-02"
)

// Roster maps user ids to display names. On disk it is a list sorted by id.
type Roster map[string]string

type member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Pick is a user's roll for one day.
type Pick struct {
	Name string `json:"pick"`
	Date string `json:"date"`
}

func rosterDecl() store.Decl {
	return store.Decl{
		Name:     "members",
		KeyNames: []string{"chat"},
		Default:  func() any { return Roster{} },
		Decode: func(raw json.RawMessage) (any, error) {
			var list []member
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, err
			}
			out := make(Roster, len(list))
			for _, m := range list {
				out[m.ID] = m.Name
			}
			return out, nil
		},
		Encode: func(v any) (any, error) {
			r, _ := v.(Roster)
			list := make([]member, 0, len(r))
			for id, name := range r {
				list = append(list, member{ID: id, Name: name})
			}
			sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
			return list, nil
		},
	}
}

type Options struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Intn returns a number in [0,n); defaults to math/rand.
	Intn func(n int) int
}

type picker struct {
	now  func() time.Time
	intn func(int) int
}

func Manifest(opts Options) *plugin.Manifest {
	p := &picker{now: opts.Now, intn: opts.Intn}
	if p.now == nil {
		p.now = time.Now
	}
	if p.intn == nil {
		p.intn = rand.Intn
	}
	return &plugin.Manifest{
		Name: Name,
		Doc:  "pick a chat member of the day",
		Namespaces: []store.Decl{
			rosterDecl(),
			store.Declare[Pick]("picks", nil, "chat", "user"),
		},
		Messages: []plugin.Message{{
			Name:       "(collect members)",
			Doc:        "Get user list in the group by listening to messages",
			Permission: plugin.Anyone(),
			Handler:    p.collect,
		}},
		Commands: []plugin.Command{{
			Name:       "pick",
			Doc:        "Get your pick of the day",
			Permission: plugin.Anyone(),
			Handler:    p.roll,
		}},
	}
}

func (p *picker) collect(_ context.Context, app *plugin.App, msg *bridge.Message) (bool, error) {
	if msg.From == nil || msg.From.IsBot {
		return true, nil
	}
	members := store.TableOf[Roster](app.DB("members"))
	roster, err := members.GetOrInsert(nil, app.Chat.ID())
	if err != nil {
		return false, err
	}
	name := msg.From.Name()
	if roster[msg.From.ID] == name {
		return true, nil
	}
	roster[msg.From.ID] = name
	app.Logger.Debug("pick_member_seen", "user_id", msg.From.ID, "members", len(roster))
	return true, nil
}

func (p *picker) roll(ctx context.Context, app *plugin.App, msg *bridge.Message, _ string) error {
	if msg.From == nil {
		return nil
	}
	chatID := app.Chat.ID()
	picks := store.TableOf[Pick](app.DB("picks"))
	today := p.now().Format(dateLayout)

	prev, ok, err := picks.Get(chatID, msg.From.ID)
	if err != nil {
		return err
	}
	if ok && prev.Date == today {
		_, err := app.Chat.Reply(ctx, msg, "You have already picked today: %1", prev.Name)
		return err
	}

	roster, _, err := store.TableOf[Roster](app.DB("members")).Get(chatID)
	if err != nil {
		return err
	}
	if len(roster) == 0 {
		_, err := app.Chat.SendTmpl(ctx, "No members known yet, please wait for %1 to collect more!", app.Config.SelfPronoun)
		return err
	}
	ids := make([]string, 0, len(roster))
	for id := range roster {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	chosen := roster[ids[p.intn(len(ids))]]

	if err := picks.Set(Pick{Name: chosen, Date: today}, chatID, msg.From.ID); err != nil {
		return err
	}
	_, err = app.Chat.Reply(ctx, msg, "Your pick today is %1", chosen)
	return err
}
