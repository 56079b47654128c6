package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quailyquaily/plugbot/internal/clifmt"
	"github.com/quailyquaily/plugbot/internal/fsstore"
	"github.com/quailyquaily/plugbot/internal/statepaths"
	"github.com/quailyquaily/plugbot/plugin"
	"github.com/quailyquaily/plugbot/store"
	"github.com/spf13/cobra"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the namespace files in the data directory",
	}
	cmd.AddCommand(newStoreListCmd())
	cmd.AddCommand(newStoreShowCmd())
	return cmd
}

// builtinStore is a store over the data dir with every built-in namespace
// registered. Nothing is loaded until a namespace is opened.
func builtinStore() (*store.Manager, error) {
	m := store.NewManager(nil, store.Options{Dir: statepaths.DataDir()})
	if err := m.Register(plugin.ManagerTree()); err != nil {
		return nil, err
	}
	for _, p := range builtinPlugins() {
		if tree := p.Tree(); tree != nil {
			if err := m.Register(tree); err != nil {
				return nil, fmt.Errorf("plugin %s: %w", p.Name, err)
			}
		}
	}
	return m, nil
}

func newStoreListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List declared namespaces and their files",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := builtinStore()
			if err != nil {
				return err
			}
			var rows []clifmt.Row
			for _, ns := range m.Registry().Namespaces() {
				rows = append(rows, namespaceRow(m, ns))
			}
			clifmt.PrintTable(cmd.OutOrStdout(), clifmt.TableOptions{
				Title:        "Namespaces in " + m.Dir(),
				Rows:         rows,
				NameHeader:   "NAMESPACE",
				DetailHeader: "FILE",
			})
			return nil
		},
	}
}

func namespaceRow(m *store.Manager, dotted string) clifmt.Row {
	path := store.ParsePath(dotted)
	file, err := m.FilePath(path...)
	if err != nil {
		return clifmt.Row{Name: dotted, Detail: err.Error()}
	}
	entry, err := m.Registry().Resolve(path...)
	if err != nil {
		return clifmt.Row{Name: dotted, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%s (keys: %s)", file, keyNames(entry.Decl))
	if _, ok, err := fsstore.ReadRaw(file); err != nil {
		detail += " " + clifmt.Warn("unreadable")
	} else if !ok {
		detail += " " + clifmt.Dim("empty")
	}
	return clifmt.Row{Name: dotted, Detail: detail}
}

func keyNames(d store.Decl) string {
	if len(d.KeyNames) > 0 {
		return strings.Join(d.KeyNames, ", ")
	}
	return fmt.Sprintf("%d", d.Arity())
}

func newStoreShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <namespace>",
		Short: "Print the stored contents of a namespace, e.g. manager.perm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := builtinStore()
			if err != nil {
				return err
			}
			path := store.ParsePath(args[0])
			entry, err := m.Registry().Resolve(path...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !entry.Leaf {
				var rows []clifmt.Row
				prefix := strings.Join(entry.Path, ".") + "."
				for _, ns := range m.Registry().Namespaces() {
					if strings.HasPrefix(ns, prefix) {
						rows = append(rows, namespaceRow(m, ns))
					}
				}
				clifmt.PrintTable(out, clifmt.TableOptions{
					Title:        args[0],
					Rows:         rows,
					NameHeader:   "NAMESPACE",
					DetailHeader: "FILE",
				})
				return nil
			}

			file, err := m.FilePath(entry.Path...)
			if err != nil {
				return err
			}
			raw, ok, err := fsstore.ReadRaw(file)
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(out, clifmt.Dim("(empty)"))
				return nil
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			_, _ = fmt.Fprintln(out, pretty.String())
			return nil
		},
	}
}
