package main

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/quailyquaily/plugbot/internal/fsstore"
	"github.com/quailyquaily/plugbot/internal/statepaths"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

//go:embed config.example.yaml
var configExample string

func newInitCmd() *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:   "init [config-path]",
		Short: "Write an example config.yaml and create the data and locale dirs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := statepaths.ConfigPath()
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				cfgPath = fsstore.ExpandHome(args[0])
			}
			cfgPath = filepath.Clean(cfgPath)

			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists: %s (use --force to overwrite)", cfgPath)
			}
			if !yes && stdinIsTerminal(cmd.InOrStdin()) {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Write %s?", cfgPath))
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			if err := fsstore.WriteFileAtomic(cfgPath, []byte(configExample), fsstore.FileOptions{FilePerm: 0o600}); err != nil {
				return err
			}
			for _, dir := range []string{statepaths.DataDir(), statepaths.LocalesDir()} {
				if err := fsstore.EnsureDir(dir, 0o700); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file.")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation.")
	return cmd
}

func stdinIsTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	_, _ = fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
