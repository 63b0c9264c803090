// Command agentd is the desktop AI-assistant backend: it brokers between
// a UI-facing view, an LLM provider, and a dynamic set of MCP tool
// servers, per spec.md's overview. Flag parsing follows the teacher's
// cmd/agently/cli.go shape (github.com/jessevdk/go-flags, a root Options
// struct of flags; there are no sub-commands).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lucidloop/deskagent/internal/chatcore"
	"github.com/lucidloop/deskagent/internal/config"
	"github.com/lucidloop/deskagent/internal/conversation"
	"github.com/lucidloop/deskagent/internal/eventbus"
	"github.com/lucidloop/deskagent/internal/llm"
	"github.com/lucidloop/deskagent/internal/llmprovider"
	"github.com/lucidloop/deskagent/internal/mcplifecycle"
	"github.com/lucidloop/deskagent/internal/mcpservice"
	"github.com/lucidloop/deskagent/internal/mcptransport"
	"github.com/lucidloop/deskagent/internal/presenter"
	"github.com/lucidloop/deskagent/internal/profile"
	"github.com/lucidloop/deskagent/internal/secretstore"
	"github.com/lucidloop/deskagent/internal/viewcommand"
)

// Options is the root command flags.NewParser populates.
type Options struct {
	Home          string `long:"home" description:"override the application data directory (default: $DESKAGENT_HOME or ~/.deskagent)"`
	Profile       string `long:"provider" description:"LLM provider id for the static profile (e.g. openai, anthropic)" default:"openai"`
	Model         string `long:"model" description:"model name for the static profile" default:"gpt-4o"`
	SystemPrompt  string `long:"system-prompt" description:"leading system message for every conversation"`
	Diagnostics   bool   `long:"diagnostics" description:"start the gops diagnostics agent"`
	Version       bool   `short:"v" long:"version" description:"print version and exit"`
}

const version = "0.1.0"

func main() {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		log.Fatal().Err(err).Msg("parse flags")
	}
	if opts.Version {
		fmt.Println(version)
		return
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if opts.Diagnostics {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Warn().Err(err).Msg("failed to start gops diagnostics agent")
		} else {
			defer agent.Close()
		}
	}

	if opts.Home != "" {
		config.SetRoot(opts.Home)
	}
	root := config.Root()
	log.Info().Str("home", root).Msg("starting deskagent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal().Err(err).Msg("agentd exited with error")
	}
}

func run(ctx context.Context, opts *Options) error {
	cfgStore := config.NewStore(config.ConfigPath())
	appCfg, err := cfgStore.Load(ctx)
	if err != nil {
		return err
	}

	secrets := secretstore.New(config.SecretsDir())

	// The transport needs a lifecycle manager to build launch commands,
	// environments, and auth headers; mcpservice.New builds its own
	// manager internally from the same secret store, so both build the
	// same commands, environments and headers for a given config; their
	// active-server tracking is separate.
	transport := mcptransport.New(mcplifecycle.New(secrets))
	mcp := mcpservice.New(cfgStore, secrets, transport)
	if err := mcp.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("mcp initialize failed, continuing with no tools")
	}
	defer transport.Shutdown()

	bus := eventbus.New()
	conversations := conversation.NewMemoryStore()

	providerID := opts.Profile
	if appCfg.ActiveProfileID != "" {
		providerID = appCfg.ActiveProfileID
	}
	prof := profile.Profile{
		ID:           "default",
		ProviderID:   providerID,
		Model:        opts.Model,
		SystemPrompt: opts.SystemPrompt,
		ShowThinking: true,
	}
	profiles := profile.NewStaticService(prof)
	log.Info().Int("configuredServers", len(appCfg.ServerConfigs)).Str("provider", providerID).Msg("loaded configuration")

	resolver := llmprovider.NewResolver(map[string]llm.ProviderSpec{
		providerID: {ID: providerID},
	})

	chat := chatcore.New(conversations, profiles, mcp, bus, resolver.Resolve)

	view := viewcommand.NewChannel(64)
	chatPresenter := presenter.New(bus, conversations, chat, view)
	chatPresenter.Start(ctx)
	defer chatPresenter.Stop()

	// The platform UI shell that normally drains view is an external
	// collaborator; this logging drain keeps Channel.Send from blocking
	// forever when run standalone.
	go logViewCommands(ctx, view)

	log.Info().Msg("deskagent ready")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

func logViewCommands(ctx context.Context, view *viewcommand.Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-view.Commands():
			if !ok {
				return
			}
			log.Debug().Str("kind", string(cmd.Kind)).Str("conversation", cmd.ConversationID.String()).Msg("view command")
		}
	}
}
