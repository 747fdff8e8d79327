package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/gfrancoarq/franco-orrego/internal/api"
	"github.com/gfrancoarq/franco-orrego/internal/calendar"
	"github.com/gfrancoarq/franco-orrego/internal/compose"
	"github.com/gfrancoarq/franco-orrego/internal/config"
	"github.com/gfrancoarq/franco-orrego/internal/escalation"
	"github.com/gfrancoarq/franco-orrego/internal/jobqueue"
	"github.com/gfrancoarq/franco-orrego/internal/lead"
	"github.com/gfrancoarq/franco-orrego/internal/llm"
	"github.com/gfrancoarq/franco-orrego/internal/logging"
	"github.com/gfrancoarq/franco-orrego/internal/orchestrator"
	"github.com/gfrancoarq/franco-orrego/internal/policy"
	"github.com/gfrancoarq/franco-orrego/internal/pricing"
	"github.com/gfrancoarq/franco-orrego/internal/prompts"
	"github.com/gfrancoarq/franco-orrego/internal/quote"
	"github.com/gfrancoarq/franco-orrego/internal/store"
	"github.com/gfrancoarq/franco-orrego/internal/whatsapp"
)

// ServeCommand returns the command that runs the webhook server and the
// processing workers in one process.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the WhatsApp webhook server and conversation workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the HTTP server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "pretty-logs",
				Usage: "Human-readable log output instead of JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if c.Int("port") > 0 {
				cfg.Server.Port = c.Int("port")
			}

			log := logging.Setup(c.String("log-level"), c.Bool("pretty-logs"))
			ctx := context.Background()

			pool, err := store.NewPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := store.EnsureSchema(ctx, pool); err != nil {
				return err
			}

			conversations := store.NewConversations(pool, cfg.Lead.BudgetCap)
			messages := store.NewMessages(pool)
			templates := store.NewTemplates(pool)
			operators := store.NewOperators(pool)

			tracker := lead.NewTracker(conversations, cfg.Lead, log)
			sender := whatsapp.NewSender(cfg.WhatsApp, log)
			pol, err := policy.New(cfg.Policy, nil)
			if err != nil {
				return err
			}

			primary, err := llm.NewGroqClient(cfg.LLM.Primary)
			if err != nil {
				return fmt.Errorf("init primary provider: %w", err)
			}
			fallback, err := llm.NewGeminiClient(ctx, cfg.LLM.Fallback)
			if err != nil {
				return fmt.Errorf("init fallback provider: %w", err)
			}
			failover := llm.NewFailover(primary, fallback, log)
			extractor := llm.NewExtractor(failoverClient{failover})

			orch := orchestrator.New(
				tracker,
				messages,
				quote.NewDetector(cfg.Quote),
				escalation.NewEngine(cfg.Escalation),
				pol,
				failover,
				extractor,
				pricing.NewCalculator(cfg.Pricing),
				compose.NewPacer(sender, cfg.Pacing, log),
				sender,
				orchestrator.Config{
					Prompts:       prompts.NewBuilder(cfg.Persona.SystemPrompt, cfg.Pricing),
					HistoryWindow: cfg.Persona.HistoryWindow,
					Texts: orchestrator.Texts{
						WelcomeText:     cfg.Greetings.WelcomeText,
						WelcomeAudioURL: cfg.Greetings.WelcomeAudioURL,
						NightNotice:     cfg.Greetings.NightNotice,
						ReopenTemplate:  cfg.Greetings.ReopenTemplate,
						NeedInfoText:    cfg.Greetings.NeedInfoText,
						DegradedText:    cfg.Greetings.DegradedText,
					},
				},
				log,
			)

			queue, err := jobqueue.New(pool, orch, jobqueue.Config{
				MaxWorkers: cfg.Queue.MaxWorkers,
				MaxRetries: cfg.Queue.MaxRetries,
			}, log)
			if err != nil {
				return err
			}
			if err := queue.Start(ctx); err != nil {
				return fmt.Errorf("start job queue: %w", err)
			}
			defer queue.Stop(ctx)

			var agenda calendar.BusyProvider
			if cfg.Calendar.BaseURL != "" {
				agenda = calendar.NewHTTPProvider(cfg.Calendar)
			}

			server := api.NewServer(api.Deps{
				Port:          cfg.Server.Port,
				VerifyToken:   cfg.WhatsApp.VerifyToken,
				Queue:         queue,
				Tracker:       tracker,
				Conversations: conversations,
				Messages:      messages,
				Templates:     templates,
				Operators:     operators,
				Sender:        sender,
				Agenda:        agenda,
				Tokens:        api.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
				Log:           log,
			})

			log.Info().Int("port", cfg.Server.Port).Msg("starting server")
			return server.Start()
		},
	}
}

// failoverClient adapts the request-based Failover to the llm.Client
// interface the extractor expects, so extraction also gets failover.
type failoverClient struct {
	failover *llm.Failover
}

func (c failoverClient) Generate(ctx context.Context, system string, history []llm.Turn, userText string) (string, error) {
	return c.failover.Generate(ctx, llm.Request{System: system, History: history, UserText: userText})
}
