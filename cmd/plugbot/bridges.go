package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/quailyquaily/plugbot/bridge"
	"github.com/quailyquaily/plugbot/bridge/console"
	"github.com/quailyquaily/plugbot/bridge/telegram"
	"github.com/quailyquaily/plugbot/internal/clifmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type bridgeFactory struct {
	doc   string
	build func(logger *slog.Logger, in io.Reader, out io.Writer) (bridge.Bridge, error)
}

var bridgeFactories = map[string]bridgeFactory{
	"console": {
		doc:   "reads messages from stdin and prints replies to stdout",
		build: consoleFromViper,
	},
	"telegram": {
		doc:   "Telegram Bot API with long polling (needs bridges.telegram.login.token)",
		build: telegramFromViper,
	},
}

func bridgeFromViper(name string, logger *slog.Logger, in io.Reader, out io.Writer) (bridge.Bridge, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	f, ok := bridgeFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown bridge %q (known: %s)", name, strings.Join(bridgeNames(), ", "))
	}
	return f.build(logger.With("bridge", name), in, out)
}

func bridgeNames() []string {
	names := make([]string, 0, len(bridgeFactories))
	for name := range bridgeFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func consoleFromViper(_ *slog.Logger, in io.Reader, out io.Writer) (bridge.Bridge, error) {
	return console.New(in, out, console.Options{
		ChatID: viper.GetString("bridges.console.login.chat_id"),
		User: bridge.User{
			ID:       viper.GetString("bridges.console.login.user_id"),
			Username: viper.GetString("bridges.console.login.username"),
		},
		BotName: viper.GetString("self_pronoun"),
	}), nil
}

func telegramFromViper(logger *slog.Logger, _ io.Reader, _ io.Writer) (bridge.Bridge, error) {
	token := strings.TrimSpace(viper.GetString("bridges.telegram.login.token"))
	if token == "" {
		return nil, fmt.Errorf("missing bridges.telegram.login.token (set via --config or %s_BRIDGES_TELEGRAM_LOGIN_TOKEN)", envPrefix)
	}
	return telegram.New(telegram.Config{
		Token:       token,
		BaseURL:     viper.GetString("bridges.telegram.login.base_url"),
		PollTimeout: viper.GetDuration("bridges.telegram.login.poll_timeout"),
		SendRate:    viper.GetFloat64("bridges.telegram.login.send_rate"),
		SendBurst:   viper.GetInt("bridges.telegram.login.send_burst"),
		Logger:      logger,
	}), nil
}

func newBridgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridges",
		Short: "List supported chat bridges",
		RunE: func(cmd *cobra.Command, args []string) error {
			active := strings.ToLower(strings.TrimSpace(viper.GetString("active_bridge")))
			var rows []clifmt.Row
			for _, name := range bridgeNames() {
				label := name
				if name == active {
					label += " *"
				}
				rows = append(rows, clifmt.Row{Name: label, Detail: bridgeFactories[name].doc})
			}
			clifmt.PrintTable(cmd.OutOrStdout(), clifmt.TableOptions{
				Title:      "Bridges",
				Rows:       rows,
				NameHeader: "BRIDGE",
			})
			return nil
		},
	}
}
