// Package cli implements brsrctl, a command-line client that edits report
// sections through the report API.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgallion1/brsrform/internal/registry"
	"github.com/dgallion1/brsrform/internal/reportclient"
)

// app is the state shared by every subcommand, built once flags and config
// have been resolved.
type app struct {
	v      *viper.Viper
	reg    *registry.Registry
	client *reportclient.Client
	log    *slog.Logger
}

// Execute runs brsrctl with os.Args.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// NewRootCmd builds the command tree. Each call has its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var cfgFile string

	root := &cobra.Command{
		Use:   "brsrctl",
		Short: "Edit BRSR report sections from the command line",
		Long: `brsrctl loads one section of a BRSR report from the report API, applies
edits, validates, and saves only that section back.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (BRSR_SERVER, BRSR_API_KEY, ...)
3. Config file (~/.brsrctl.yaml)
4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cfgFile, cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.client != nil {
				a.client.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.brsrctl.yaml)")
	pf.String("server", "http://localhost:8095", "report API base URL")
	pf.String("api-key", "", "report API key")
	pf.Duration("cache-ttl", 5*time.Second, "how long a fetched report is reused (0 disables)")
	pf.String("sections", "", "section registry file (default: built-in)")
	pf.Bool("yes", false, "confirm validation warnings when saving")
	pf.BoolP("verbose", "v", false, "verbose output")
	for _, name := range []string{"server", "api-key", "cache-ttl", "sections", "yes", "verbose"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		a.sectionsCmd(),
		a.createCmd(),
		a.listCmd(),
		a.submitCmd(),
		a.exportCmd(),
		a.getCmd(),
		a.setCmd(),
		a.addRowCmd(),
		a.removeRowCmd(),
		a.validateCmd(),
	)
	return root
}

func (a *app) init(cfgFile string, stderr io.Writer) error {
	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.SetConfigFile(filepath.Join(home, ".brsrctl.yaml"))
	}
	a.v.SetEnvPrefix("BRSR")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		// The default file is optional.
		if cfgFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	} else if a.v.GetBool("verbose") {
		fmt.Fprintf(stderr, "Using config file: %s\n", a.v.ConfigFileUsed())
	}

	level := slog.LevelWarn
	if a.v.GetBool("verbose") {
		level = slog.LevelInfo
	}
	a.log = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	reg, err := loadRegistry(a.v.GetString("sections"))
	if err != nil {
		return err
	}
	a.reg = reg

	a.client = reportclient.NewClient(
		strings.TrimRight(a.v.GetString("server"), "/"),
		a.v.GetString("api-key"),
		reportclient.WithCacheTTL(a.v.GetDuration("cache-ttl")),
	)
	return nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}
