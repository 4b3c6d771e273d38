package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/config"
	"github.com/iamwavecut/ngguard/internal/enforcement"
	"github.com/iamwavecut/ngguard/internal/handlers/commands"
	"github.com/iamwavecut/ngguard/internal/handlers/members"
	"github.com/iamwavecut/ngguard/internal/infra"
	"github.com/iamwavecut/ngguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/ngguard/internal/lifecycle"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/observability"
	"github.com/iamwavecut/ngguard/internal/policy"
	"github.com/iamwavecut/ngguard/internal/registration"
	"github.com/iamwavecut/ngguard/internal/store"
	"github.com/iamwavecut/ngguard/internal/store/redisstore"
	"github.com/iamwavecut/ngguard/internal/store/sqlite"
	"github.com/iamwavecut/ngguard/internal/welcome"
)

const shutdownTimeout = 10 * time.Second

var errExecutableModified = errors.New("executable file was modified")

func main() {
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch err := run(ctx, cfg); {
	case err == nil, errors.Is(err, context.Canceled):
		log.Infoln("bye")
	case errors.Is(err, errExecutableModified):
		log.Warnln(err)
	default:
		stop()
		log.WithError(err).Fatalln("bot stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.WithError(err).Warnln("cant close store")
		}
	}()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return errors.WithMessage(err, "cant initialize bot api")
	}
	botAPI.Debug = log.Level(cfg.LogLevel) == log.TraceLevel
	log.WithField("username", botAPI.Self.UserName).Infoln("authorized")

	ops := telegram.NewOperations(botAPI, botAPI.Self, telegram.Options{
		SendConcurrency: cfg.Telegram.SendConcurrency,
		SendSpacing:     cfg.Telegram.SendSpacing,
		AdminCacheTTL:   cfg.Telegram.AdminCacheTTL,
		AdminCacheSize:  cfg.Telegram.AdminCacheSize,
	})
	groups := policy.NewGroups(s)
	executor := moderation.NewExecutor(ops, groups, s, moderation.WithKickGrace(cfg.Moderation.KickGrace))
	ledger := moderation.NewLedger(s, groups, executor)
	burst := moderation.NewBurstDetector(s, ops, cfg.DefaultLanguage, moderation.WithSweepInterval(cfg.Moderation.BurstSweepInterval))
	registry := registration.NewRegistry(s)
	greetings := welcome.NewStore(s)

	orchestrator := enforcement.NewOrchestrator(enforcement.Dependencies{
		Policy:      groups,
		Registry:    registry,
		Admins:      ops,
		Ledger:      ledger,
		Executor:    executor,
		Notifier:    ops,
		Store:       s,
		Classifiers: enforcement.DefaultClassifiers(groups, ops),
		IsDev:       cfg.IsDev,
		BotUsername: botAPI.Self.UserName,
		Language:    cfg.DefaultLanguage,
	})
	cmds := commands.NewCommands(commands.Dependencies{
		Platform:  ops,
		Groups:    groups,
		Registry:  registry,
		Ledger:    ledger,
		Executor:  executor,
		Greetings: greetings,
		Burst:     burst,
		Store:     s,
		IsDev:     cfg.IsDev,
		Language:  cfg.DefaultLanguage,
	})
	greeter := members.NewMembers(members.Dependencies{
		Platform:  ops,
		Groups:    groups,
		Greetings: greetings,
		Language:  cfg.DefaultLanguage,
	})

	processor := bot.NewUpdateProcessor(s, ops, map[string]bot.Handler{
		"members":     greeter,
		"enforcement": orchestrator,
		"commands":    cmds,
	}, cfg.EnabledHandlers, bot.WithMaxAge(cfg.UpdateMaxAge))
	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	// Membership changes are only delivered when asked for.
	updateConfig.AllowedUpdates = []string{"message", "edited_message", "callback_query", "my_chat_member", "chat_member"}
	service := bot.NewService(botAPI, processor, updateConfig, botAPI.Buffer)

	runtime := lifecycle.NewRuntime()
	runtime.Register("metrics", observability.NewMetricsServer(cfg.MetricsAddr))
	runtime.Register("burst", burst)
	runtime.Register("polling", service)
	if err := runtime.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Warnln("unclean shutdown")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-service.Errors():
			return err
		}
	})
	if changed, err := infra.WatchExecutable(gctx, infra.DefaultWatchInterval); err != nil {
		log.WithError(err).Warnln("executable watch disabled")
	} else {
		g.Go(func() error {
			if _, modified := <-changed; modified {
				return errExecutableModified
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "redis":
		return redisstore.NewStore(ctx, cfg.Store.RedisURL)
	case "sqlite":
		dir, err := infra.GetWorkDir(cfg.DotPath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewSQLiteClient(ctx, dir, cfg.Store.DBName)
	}
	return nil, errors.Errorf("unknown store driver %q", cfg.Store.Driver)
}
