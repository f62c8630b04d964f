package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/hitoshi/planify/internal/metrics"
	"github.com/hitoshi/planify/internal/model"
	"github.com/hitoshi/planify/internal/planner"
	"github.com/hitoshi/planify/internal/planner/voice"
	"github.com/spf13/cobra"
)

// Version はビルド時に -ldflags で埋め込む。
var Version = "dev"

// NewRootCommand はplanifyのルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
// wはログの出力先。nilの場合は標準出力。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := newServeCommand(w)
	root := &cobra.Command{
		Use:     "planify",
		Short:   "Planify productivity and finance API",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
	}

	root.AddCommand(
		serve,
		newMigrateCommand(w),
		newHealthcheckCommand(),
		newPlanCommand(w),
		newVersionCommand(),
	)
	return root
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runServe(cfg)
		},
	}
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (DATABASE_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if down < 0 {
				return fmt.Errorf("--down must be positive: %d", down)
			}
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runMigrate(cfg, down)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back the given number of migrations instead of applying")
	return cmd
}

// newHealthcheckCommand は軽量サブコマンドのため、フル初期化をスキップする。
func newHealthcheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe /health of a running server (for distroless images)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := os.Getenv("SERVER_PORT")
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(port)
		},
	}
}

func newPlanCommand(w io.Writer) *cobra.Command {
	var (
		lang   string
		listen bool
	)
	cmd := &cobra.Command{
		Use:   "plan [text]",
		Short: "Turn free text into task drafts without saving them",
		Long: "Turn free text into task drafts without saving them.\n" +
			"With --listen, the text is read from stdin as transcript lines written by a speech recognizer.",
		Args: func(cmd *cobra.Command, args []string) error {
			if listen {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(w)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			language := model.ParseLanguage(lang, cfg.DefaultLanguage)

			text := strings.Join(args, " ")
			if listen {
				rec := voice.NewLineRecognizer(cmd.InOrStdin())
				if text, err = listenText(cmd.Context(), rec, language, slog.Default()); err != nil {
					return err
				}
			}

			parser, err := newParser(cmd.Context(), cfg, metrics.Nop{}, slog.Default())
			if err != nil {
				return err
			}
			return runPlan(cmd.Context(), cmd.OutOrStdout(), parser, planner.Request{
				Text:        text,
				CurrentDate: model.FormatDate(time.Now()),
				Language:    language,
			})
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "response language (uz|ru)")
	cmd.Flags().BoolVar(&listen, "listen", false, "read the text from a speech recognizer on stdin")
	return cmd
}

// listenText は音声入力が終わるまで待ち、認識結果を返す。
func listenText(ctx context.Context, rec voice.Recognizer, lang model.Language, log *slog.Logger) (string, error) {
	capture := voice.NewCapture(rec, log)
	if err := capture.Start(ctx, lang); err != nil {
		return "", fmt.Errorf("%s: %w", voice.ErrorMessage(err, lang), err)
	}

	select {
	case <-capture.Done():
	case <-ctx.Done():
		capture.Stop()
		return "", ctx.Err()
	}

	if err := capture.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", voice.ErrorMessage(err, lang), err)
	}
	text := strings.TrimSpace(capture.Text())
	if text == "" {
		err := &voice.RecognitionError{Code: voice.CodeNoSpeech}
		return "", fmt.Errorf("%s: %w", voice.ErrorMessage(err, lang), err)
	}
	return text, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "planify %s\n", Version)
		},
	}
}

// draftParser はplanコマンドが必要とするタスク案生成。
type draftParser interface {
	Parse(ctx context.Context, req planner.Request) ([]planner.Draft, error)
}

// runPlan はタスク案を生成して表として出力する。何も保存しない。
func runPlan(ctx context.Context, out io.Writer, p draftParser, req planner.Request) error {
	drafts, err := p.Parse(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(drafts) == 0 {
		_, err := fmt.Fprintln(out, model.EmptyPlanMessage(req.Language))
		return err
	}
	_, err = fmt.Fprintln(out, renderDrafts(drafts, req.Language))
	return err
}

// renderDrafts はタスク案を優先度で色分けした表にする。
func renderDrafts(drafts []planner.Draft, lang model.Language) *uitable.Table {
	bold := color.New(color.Bold).SprintFunc()

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(
		bold(lang.Pick("Sana", "Дата")),
		bold(lang.Pick("Vaqt", "Время")),
		bold(lang.Pick("Muhimlik", "Приоритет")),
		bold(lang.Pick("Vazifa", "Задача")),
	)
	for _, d := range drafts {
		slot := "-"
		if d.TimeBlock != nil {
			slot = *d.TimeBlock
		}
		tbl.AddRow(d.Date, slot, priorityColor(d.Priority).Sprint(d.Priority), d.Title)
	}
	return tbl
}

func priorityColor(p model.Priority) *color.Color {
	switch p {
	case model.PriorityHigh:
		return color.New(color.FgRed, color.Bold)
	case model.PriorityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}
