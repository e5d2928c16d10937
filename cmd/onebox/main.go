// Command onebox synchronizes configured IMAP mailboxes into a local,
// classified email store and serves the read API over it.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nhle/onebox/internal/api"
	"github.com/nhle/onebox/internal/classify"
	"github.com/nhle/onebox/internal/credential"
	"github.com/nhle/onebox/internal/ingest"
	"github.com/nhle/onebox/internal/logging"
	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
	"github.com/nhle/onebox/internal/notify"
	"github.com/nhle/onebox/internal/store"
	"github.com/nhle/onebox/internal/sync"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	setSecret := flag.String("set-secret", "", "store the IMAP password for an account user in the OS keyring and exit")
	deleteSecret := flag.String("delete-secret", "", "remove the stored IMAP password for an account user and exit")
	flag.Parse()

	if *setSecret != "" {
		if err := storeSecret(*setSecret, os.Stdin); err != nil {
			log.Fatalf("store secret: %v", err)
		}
		return
	}
	if *deleteSecret != "" {
		if err := credential.Delete(credential.IMAPKey(*deleteSecret)); err != nil {
			log.Fatalf("delete secret: %v", err)
		}
		return
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	accounts, err := model.ValidateAccounts(cfg.Accounts)
	if err != nil {
		logger.Error("invalid account configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(accounts) == 0 {
		logger.Warn("no accounts configured, nothing to synchronize")
	}

	// Secrets left out of the config file come from the OS keyring.
	for i := range accounts {
		if accounts[i].Secret != "" {
			continue
		}
		secret, err := credential.Get(credential.IMAPKey(accounts[i].User))
		if err != nil {
			logger.Error("resolving account secret",
				slog.String("account", accounts[i].User),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		accounts[i].Secret = secret
	}

	if cfg.Classifier.APIKey == "" {
		cfg.Classifier.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	pipeline := ingest.NewPipeline(
		st,
		classify.New(cfg.Classifier),
		notify.NewService(cfg.Notify),
		logger,
	)

	dial := func(acc model.Account, folder string) (sync.Session, error) {
		return mailbox.Dial(acc, folder, logger)
	}
	driver := sync.NewDriver(accounts, cfg.Sync, dial, pipeline, logger)

	apiServer := api.NewServer(cfg.API, st, logger)
	if apiServer != nil {
		if err := apiServer.Start(ctx); err != nil {
			logger.Error("start api server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	go driver.Run(ctx)

	<-ctx.Done()
	logger.Info("onebox shutting down")
	apiServer.Stop()
}

// storeSecret reads a password from in and saves it in the OS keyring under
// the account's IMAP credential key.
func storeSecret(user string, in *os.File) error {
	fmt.Fprintf(os.Stderr, "IMAP password for %s: ", user)
	secret, err := bufio.NewReader(in).ReadString('\n')
	secret = strings.TrimSpace(secret)
	if err != nil && secret == "" {
		return fmt.Errorf("reading password: %w", err)
	}
	if secret == "" {
		return fmt.Errorf("empty password for %s", user)
	}
	return credential.Set(credential.IMAPKey(user), secret)
}
