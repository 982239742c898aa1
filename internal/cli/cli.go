// Package cli is the veriview-ops command tree: configuration and dependency
// checks, retention, manual renders and render cache maintenance.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoockh/veriview/config"
	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/bootstrap"
	"github.com/yoockh/veriview/internal/logger"
	"github.com/yoockh/veriview/internal/utils"
	"github.com/yoockh/veriview/internal/workers"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitDependency  = 2
	ExitInterrupted = 130
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, utils.ErrConfig):
		return ExitConfig
	}
	if re, ok := avatar.AsRenderError(err); ok {
		if re.Reason == avatar.ReasonAuth || re.Reason == avatar.ReasonDisabled {
			return ExitConfig
		}
		return ExitDependency
	}
	if errors.Is(err, utils.ErrAnalyzerUnavailable) || utils.IsCode(err, utils.CodeUnavailable) {
		return ExitDependency
	}
	return ExitConfig
}

// Execute runs the command tree and returns the exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", context.Canceled, err)
		}
		_, _ = fmt.Fprintln(stderr, err)
	}
	return ExitCode(err)
}

func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "veriview-ops",
		Short:         "Operations for the veriview practice backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for backing-store connections")

	root.AddCommand(newCheckCmd(&logLevel))
	root.AddCommand(newExpireCmd(&logLevel))
	root.AddCommand(newRenderCmd(&logLevel))
	root.AddCommand(newStorageCmd(&logLevel))
	root.AddCommand(newHashTokenCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open connects the backing stores; logs go to stderr so stdout stays
// machine readable.
func open(cmd *cobra.Command, level string) (*bootstrap.Resources, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(level)
	log.SetOutput(cmd.ErrOrStderr())
	return bootstrap.Open(cmd.Context(), cfg, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCheckCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, load analyzers and ping backing services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			res, err := open(cmd, *logLevel)
			if err != nil {
				return err
			}
			defer res.Close()

			sup, err := res.LoadAnalyzers(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "analyzer policy: %s\n", sup.Policy())
			status := sup.Status()
			names := make([]string, 0, len(status))
			for n := range status {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				st := status[n]
				line := fmt.Sprintf("%-8s %s", n, st.Variant)
				if st.Demoted {
					line += " (demoted: " + st.Reason + ")"
				}
				_, _ = fmt.Fprintln(out, line)
			}

			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			names = names[:0]
			for n := range res.Checks {
				names = append(names, n)
			}
			sort.Strings(names)
			var failed []string
			for _, n := range names {
				if err := res.Checks[n](checkCtx); err != nil {
					_, _ = fmt.Fprintf(out, "%-8s FAIL %v\n", n, err)
					failed = append(failed, n)
					continue
				}
				_, _ = fmt.Fprintf(out, "%-8s ok\n", n)
			}
			if len(failed) > 0 {
				return utils.E(utils.CodeUnavailable, "Ops.Check", fmt.Sprintf("%d backing services unreachable", len(failed)), nil)
			}
			return nil
		},
	}
}

func newExpireCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire idle sessions and run the content store retention scan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := open(cmd, *logLevel)
			if err != nil {
				return err
			}
			defer res.Close()

			w := &workers.RetentionWorker{
				Sessions:   res.Sessions,
				Store:      res.Store,
				Events:     res.Events,
				Inactivity: res.Config.InactivityTTL,
				Logger:     res.Log,
			}
			rep, err := w.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
}

var roles = map[string]avatar.Role{
	"interviewer": avatar.RoleInterviewer,
	"pro":         avatar.RolePro,
	"con":         avatar.RoleCon,
}

func newRenderCmd(logLevel *string) *cobra.Command {
	var role, phase string

	cmd := &cobra.Command{
		Use:   "render <text>",
		Short: "Render one utterance into the avatar cache and print its path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := roles[role]
			if !ok {
				return fmt.Errorf("%w: unknown role %q (interviewer|pro|con)", utils.ErrConfig, role)
			}
			res, err := open(cmd, *logLevel)
			if err != nil {
				return err
			}
			defer res.Close()

			renderer, err := res.NewRenderer()
			if err != nil {
				return err
			}
			path, err := renderer.Render(cmd.Context(), args[0], r, phase)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "interviewer", "speaker role: interviewer|pro|con")
	cmd.Flags().StringVar(&phase, "phase", "question", "phase tag used in the cache path")
	return cmd
}

func newStorageCmd(logLevel *string) *cobra.Command {
	storage := &cobra.Command{Use: "storage", Short: "Content store maintenance"}

	storage.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show file counts and sizes of the render cache and session directories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := open(cmd, *logLevel)
			if err != nil {
				return err
			}
			defer res.Close()
			info, err := res.Store.Info()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	})

	storage.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every rendered clip from the render cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := open(cmd, *logLevel)
			if err != nil {
				return err
			}
			defer res.Close()
			n, err := res.Store.Clear()
			if err != nil {
				return err
			}
			res.Log.WithField("removed", n).Info("render cache cleared")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached clips\n", n)
			return nil
		},
	})
	return storage
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to use as VERIVIEW_ADMIN_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) < 16 {
				return fmt.Errorf("%w: admin token must be at least 16 characters", utils.ErrConfig)
			}
			h, err := utils.HashToken(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
