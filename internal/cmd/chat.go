package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/sheetql/internal/chat"
	"github.com/runger/sheetql/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation about your spreadsheets",
	Long: `Start a multi-turn conversation: pick a spreadsheet from the files
folder, choose an action, then ask follow-up questions against the
same data. Use /report to turn the conversation into an xlsx file,
/end to finish and /cancel to start over.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var (
	chatFilesDir    string
	chatModel       string
	chatCache       bool
	chatTimeoutSecs int
)

func init() {
	chatCmd.Flags().StringVar(&chatFilesDir, "files-dir", "", "Folder with selectable spreadsheets (overrides config)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Model to use (overrides config)")
	chatCmd.Flags().BoolVar(&chatCache, "cache", true, "Keep staged stores between turns")
	chatCmd.Flags().IntVar(&chatTimeoutSecs, "timeout", 0, "Query time budget in seconds (overrides config)")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := setup(false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	filesDir := chatFilesDir
	if filesDir == "" {
		filesDir = a.cfg.Chat.FilesDir
	}

	model := chatModel
	if model == "" {
		model = a.cfg.Model.Name
	}

	sessions := session.NewStoreWithTTL(time.Duration(a.cfg.Chat.SessionTTLHours) * time.Hour)
	repl := chat.New(os.Stdin, os.Stdout, a.pipeline, sessions, chat.NewDirSource(filesDir), session.TurnOptions{
		Model:      model,
		Budget:     budget(a, chatTimeoutSecs),
		OutputPath: a.cfg.Execution.Output,
		UseCache:   chatCache,
	})

	if err := repl.Run(ctx); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
