package main

import (
	"time"

	"github.com/quailyquaily/plugbot/bridge/telegram"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Global
	viper.SetDefault("data_dir", "~/.plugbot/data")
	viper.SetDefault("locales_dir", "")
	viper.SetDefault("self_pronoun", "plugbot")
	viper.SetDefault("owners", []string{})
	viper.SetDefault("active_bridge", "console")

	// Store
	viper.SetDefault("internal.db_write_batch_size", 1)
	viper.SetDefault("debug.die_for_uncaught_error", false)

	// i18n
	viper.SetDefault("i18n.watch", false)
	viper.SetDefault("i18n.record_missing", true)

	// Bridges
	viper.SetDefault("bridges.console.cmd_prefix", "!")
	viper.SetDefault("bridges.console.bot_addresser", "")
	viper.SetDefault("bridges.console.login.chat_id", "console")
	viper.SetDefault("bridges.console.login.user_id", "local")
	viper.SetDefault("bridges.console.login.username", "me")

	viper.SetDefault("bridges.telegram.cmd_prefix", "/")
	viper.SetDefault("bridges.telegram.bot_addresser", "")
	viper.SetDefault("bridges.telegram.login.token", "")
	viper.SetDefault("bridges.telegram.login.base_url", telegram.DefaultBaseURL)
	viper.SetDefault("bridges.telegram.login.poll_timeout", 30*time.Second)
	viper.SetDefault("bridges.telegram.login.send_rate", 20.0)
	viper.SetDefault("bridges.telegram.login.send_burst", 5)

	// Process
	viper.SetDefault("metrics.listen", "")
	viper.SetDefault("shutdown.drain_timeout", 10*time.Second)

	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
