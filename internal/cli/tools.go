package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tgmatch/internal/auth"
	"tgmatch/internal/config"
	"tgmatch/internal/models"
	"tgmatch/internal/storage"
	"tgmatch/internal/telegramauth"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a config file with fresh session keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		return runInitConfig(cmd.OutOrStdout(), path, force)
	},
}

var signCmd = &cobra.Command{
	Use:   "sign <widget|initdata> [key=value...]",
	Short: "Sign a test payload with the configured bot token",
	Long: `Builds a signed Login Widget query string or Mini App initData string.
auth_date defaults to now. For initdata pass the user as JSON, e.g.
  tgmatch sign initdata 'user={"id":42,"first_name":"Anna"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		return runSign(cmd.OutOrStdout(), cfg.Telegram.BotToken, args[0], args[1:], time.Now())
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <telegram-id> <role>",
	Short: "Change the role of a user (user, moderator, admin, banned)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := storage.Open(cfg.DBPath, storeOptions(cfg))
		if err != nil {
			return err
		}
		defer store.Close()
		return runPromote(cmd.Context(), cmd.OutOrStdout(), store, args[0], args[1])
	},
}

func init() {
	initConfigCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
}

func runInitConfig(w io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	var err error
	if cfg.Session.HashKey, err = auth.GenerateKeyHex(32); err != nil {
		return err
	}
	if cfg.Session.BlockKey, err = auth.GenerateKeyHex(32); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "Config written to %s\n", path)
	fmt.Fprintln(w, "Set telegram.bot_token (or TELEGRAM_BOT_TOKEN) before serving.")
	return nil
}

func runSign(w io.Writer, botToken, kind string, pairs []string, now time.Time) error {
	var p telegramauth.Protocol
	switch kind {
	case "widget":
		p = telegramauth.LoginWidget
	case "initdata", "miniapp":
		p = telegramauth.MiniApp
	default:
		return fmt.Errorf("unknown payload kind %q, want widget or initdata", kind)
	}

	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return fmt.Errorf("invalid field %q, want key=value", pair)
		}
		if name == "hash" {
			return errors.New("hash is computed, do not pass it")
		}
		if _, dup := values[name]; dup {
			return fmt.Errorf("field %q given twice", name)
		}
		values[name] = value
	}
	fields := telegramauth.FieldsFromMap(values)
	if _, found := fields.Get("auth_date"); !found {
		fields = fields.Set("auth_date", strconv.FormatInt(now.Unix(), 10))
	}

	hash, err := telegramauth.Sign(p, fields, botToken)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, fields.Set("hash", hash).Encode())
	return nil
}

func runPromote(ctx context.Context, w io.Writer, store *storage.Store, telegramID, role string) error {
	id, err := strconv.ParseInt(telegramID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram id %q", telegramID)
	}

	user, err := store.UserByTelegramID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no user with telegram id %d; they must sign in once first", id)
	}
	if err != nil {
		return err
	}

	user, err = store.SetRole(ctx, user.ID, models.Role(role))
	if err != nil {
		return err
	}
	log.Printf("[cli] role of user %d set to %s", user.ID, user.Role)
	fmt.Fprintf(w, "%s (telegram id %d) is now %s\n", user.FullName, user.TelegramID, user.Role)
	return nil
}
