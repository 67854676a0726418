// File: internal/discord/bot.go
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

const defaultCommandTimeout = 30 * time.Second

// Responder is the part of a session used to answer interactions
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot serves slash commands over a Discord gateway session
type Bot struct {
	session        *discordgo.Session
	config         config.DiscordConfig
	commands       Commands
	metrics        *metrics.Manager
	logger         *logrus.Logger
	commandTimeout time.Duration
	now            func() time.Time

	mu      sync.Mutex
	running bool
	removes []func()
}

// NewBot creates a bot session. The gateway is not opened until Start.
func NewBot(cfg config.DiscordConfig, commands Commands, metricsManager *metrics.Manager) (*Bot, error) {
	if cfg.Token == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Discord token is required", "")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeConfiguration, "Failed to create Discord session", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	return &Bot{
		session:        session,
		config:         cfg,
		commands:       commands,
		metrics:        metricsManager,
		logger:         utils.GetLogger(),
		commandTimeout: defaultCommandTimeout,
		now:            time.Now,
	}, nil
}

// WithLogger replaces the bot logger
func (b *Bot) WithLogger(logger *logrus.Logger) *Bot {
	b.logger = logger
	return b
}

// WithCommands sets the command handler. The bot shares its session with the
// alert sender, so commands are usually attached after construction.
func (b *Bot) WithCommands(commands Commands) *Bot {
	b.commands = commands
	return b
}

// Session exposes the underlying session so alerts can share the connection
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Start opens the gateway connection and installs the handlers
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("discord bot is already running")
	}
	if b.commands == nil {
		return fmt.Errorf("discord bot has no command handler")
	}

	b.removes = append(b.removes,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onInteractionCreate),
	)
	if err := b.session.Open(); err != nil {
		b.removeHandlers()
		return utils.WrapAppError(utils.ErrCodeConnection, "Failed to open Discord gateway", err)
	}
	b.running = true
	b.logger.Info("Discord bot connected")
	return nil
}

// Stop closes the gateway connection
func (b *Bot) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false
	b.removeHandlers()
	if err := b.session.Close(); err != nil {
		return utils.WrapAppError(utils.ErrCodeConnection, "Failed to close Discord gateway", err)
	}
	b.logger.Info("Discord bot disconnected")
	return nil
}

func (b *Bot) removeHandlers() {
	for _, remove := range b.removes {
		remove()
	}
	b.removes = nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.WithFields(logrus.Fields{
		"user":   r.User.Username,
		"guilds": len(r.Guilds),
	}).Info("Discord session ready")

	if !b.config.RegisterCommands {
		return
	}
	if err := RegisterSlashCommands(s, r.User.ID, b.config.GuildID, b.logger); err != nil {
		b.logger.WithError(err).Error("Slash command registration incomplete")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handleInteraction(s, i)
}

func (b *Bot) handleInteraction(r Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	inv := newInvocation(i)

	var flags discordgo.MessageFlags
	if ephemeralCommands[inv.name] {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		b.logger.WithFields(logrus.Fields{"command": inv.name, "error": err}).Warn("Failed to acknowledge interaction")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.commandTimeout)
	defer cancel()

	start := time.Now()
	rep := b.handle(ctx, inv)
	status := "success"
	if rep.failed {
		status = "error"
	}
	if b.metrics != nil {
		b.metrics.GetPrometheusMetrics().RecordCommand(inv.name, status)
	}
	b.logger.WithFields(logrus.Fields{
		"command":  inv.name,
		"user":     inv.userID,
		"status":   status,
		"duration": time.Since(start),
	}).Debug("Command handled")

	b.deliver(r, i.Interaction, rep, flags)
}

// deliver edits the deferred response and sends overflow embeds as followups
func (b *Bot) deliver(r Responder, interaction *discordgo.Interaction, rep reply, flags discordgo.MessageFlags) {
	batches := chunkEmbeds(rep.embeds)

	content := rep.content
	edit := &discordgo.WebhookEdit{Content: &content}
	if len(batches) > 0 {
		first := batches[0]
		edit.Embeds = &first
	}
	if _, err := r.InteractionResponseEdit(interaction, edit); err != nil {
		b.logger.WithError(err).Warn("Failed to edit interaction response")
		return
	}

	for _, batch := range batches[min(1, len(batches)):] {
		if _, err := r.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{Embeds: batch, Flags: flags}); err != nil {
			b.logger.WithError(err).Warn("Failed to send followup message")
			return
		}
	}
}
