package main

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/plugbot/dispatch"
	"github.com/quailyquaily/plugbot/internal/clifmt"
	"github.com/quailyquaily/plugbot/plugin"
	"github.com/quailyquaily/plugbot/plugins/core"
	"github.com/quailyquaily/plugbot/plugins/pick"
	"github.com/spf13/cobra"
)

// builtinPlugins is the statically linked plugin set.
func builtinPlugins() []*plugin.Manifest {
	return []*plugin.Manifest{
		core.Manifest(),
		pick.Manifest(pick.Options{}),
	}
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List built-in plugins, their commands and the message handler order",
		RunE: func(cmd *cobra.Command, args []string) error {
			plugins := builtinPlugins()
			out := cmd.OutOrStdout()

			var pluginRows, commandRows, messageRows []clifmt.Row
			var messages []plugin.Message
			owner := map[string]string{}
			for _, p := range plugins {
				var namespaces []string
				for _, d := range p.Namespaces {
					namespaces = append(namespaces, d.Name)
				}
				detail := p.Doc
				if len(namespaces) > 0 {
					detail += " [namespaces: " + strings.Join(namespaces, ", ") + "]"
				}
				pluginRows = append(pluginRows, clifmt.Row{Name: p.Name, Detail: detail})
				for _, c := range p.Commands {
					commandRows = append(commandRows, clifmt.Row{
						Name:   c.Name,
						Detail: fmt.Sprintf("%s (plugin %s, permission %s)", c.Doc, p.Name, c.Permission),
					})
				}
				for _, m := range p.Messages {
					owner[m.Name] = p.Name
					messages = append(messages, m)
				}
			}

			ordered, err := dispatch.Order(messages)
			if err != nil {
				return err
			}
			for i, m := range ordered {
				detail := fmt.Sprintf("%s (plugin %s)", m.Doc, owner[m.Name])
				if m.Endpoint {
					detail += " [endpoint]"
				}
				messageRows = append(messageRows, clifmt.Row{Name: fmt.Sprintf("%d. %s", i+1, m.Name), Detail: detail})
			}

			clifmt.PrintTable(out, clifmt.TableOptions{Title: "Plugins", Rows: pluginRows, NameHeader: "PLUGIN"})
			fmt.Fprintln(out)
			clifmt.PrintTable(out, clifmt.TableOptions{Title: "Commands", Rows: commandRows, NameHeader: "COMMAND"})
			fmt.Fprintln(out)
			clifmt.PrintTable(out, clifmt.TableOptions{
				Title:      "Message chain",
				Rows:       messageRows,
				NameHeader: "HANDLER",
				EmptyText:  "No message handlers.",
			})
			return nil
		},
	}
}
