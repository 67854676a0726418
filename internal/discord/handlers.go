package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/service"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// Commands is the command surface the bot exposes
type Commands interface {
	Chains() []service.ChainInfo
	Register(ctx context.Context, req service.RegisterRequest) (*service.RegistrationResult, error)
	Unregister(ctx context.Context, userID, chainName, operatorAddress string) error
	Status(ctx context.Context, chainName, operatorAddress string) (*models.ValidatorStatus, error)
	MyValidators(ctx context.Context, userID string) ([]*service.RegistrationStatus, error)
	SetValidatorNotifications(ctx context.Context, userID, chainName, operatorAddress string, enabled bool) error
	SetChainNotifications(ctx context.Context, channelID, chainName string, update service.ChainPreferenceUpdate) (*models.ChannelPreference, error)
	SendTestNotification(ctx context.Context, channelID, userID string) error
}

type invocation struct {
	name      string
	guildID   string
	channelID string
	userID    string
	options   map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func newInvocation(i *discordgo.InteractionCreate) invocation {
	data := i.ApplicationCommandData()
	inv := invocation{
		name:      data.Name,
		guildID:   i.GuildID,
		channelID: i.ChannelID,
		options:   make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options)),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.userID = i.Member.User.ID
	case i.User != nil:
		inv.userID = i.User.ID
	}
	for _, opt := range data.Options {
		inv.options[opt.Name] = opt
	}
	return inv
}

func (inv invocation) str(name string) string {
	if opt, ok := inv.options[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (inv invocation) boolean(name string) *bool {
	if opt, ok := inv.options[name]; ok && opt.Type == discordgo.ApplicationCommandOptionBoolean {
		v := opt.BoolValue()
		return &v
	}
	return nil
}

type reply struct {
	content string
	embeds  []*discordgo.MessageEmbed
	failed  bool
}

func (b *Bot) handle(ctx context.Context, inv invocation) reply {
	switch inv.name {
	case CommandHelp:
		return reply{embeds: []*discordgo.MessageEmbed{helpEmbed()}}
	case CommandListChains:
		return reply{embeds: []*discordgo.MessageEmbed{chainsEmbed(b.commands.Chains())}}
	case CommandRegister:
		return b.handleRegister(ctx, inv)
	case CommandUnregister:
		return b.handleUnregister(ctx, inv)
	case CommandMyValidators:
		return b.handleMyValidators(ctx, inv)
	case CommandValidatorStatus:
		return b.handleValidatorStatus(ctx, inv)
	case CommandSetValidatorNotifications:
		return b.handleSetValidatorNotifications(ctx, inv)
	case CommandSetChainNotifications:
		return b.handleSetChainNotifications(ctx, inv)
	case CommandTestNotification:
		return b.handleTestNotification(ctx, inv)
	}
	return reply{content: "Unknown command.", failed: true}
}

func (b *Bot) handleRegister(ctx context.Context, inv invocation) reply {
	res, err := b.commands.Register(ctx, service.RegisterRequest{
		GuildID:         inv.guildID,
		ChannelID:       inv.channelID,
		UserID:          inv.userID,
		Chain:           inv.str(optionChain),
		OperatorAddress: inv.str(optionAddress),
	})
	if err != nil {
		if utils.ErrorCode(err) == utils.ErrCodeConflict {
			return reply{content: infoMessage("Validator `%s` is already in your monitoring list.", inv.str(optionAddress))}
		}
		return b.errorReply(inv, err)
	}
	return reply{content: successMessage("Validator `%s` on **%s** is now being monitored in this channel.",
		res.Moniker, strings.ToUpper(res.ChainName))}
}

func (b *Bot) handleUnregister(ctx context.Context, inv invocation) reply {
	if err := b.commands.Unregister(ctx, inv.userID, inv.str(optionChain), inv.str(optionAddress)); err != nil {
		return b.errorReply(inv, err)
	}
	return reply{content: successMessage("Validator `%s` has been removed from your monitoring list.", inv.str(optionAddress))}
}

func (b *Bot) handleMyValidators(ctx context.Context, inv invocation) reply {
	entries, err := b.commands.MyValidators(ctx, inv.userID)
	if err != nil {
		return b.errorReply(inv, err)
	}
	if len(entries) == 0 {
		return reply{content: infoMessage("You are not monitoring any validators yet. Use `/register` to add one.")}
	}

	embeds := make([]*discordgo.MessageEmbed, 0, len(entries))
	for _, entry := range entries {
		addr := entry.Registration.OperatorAddress
		if entry.Status == nil {
			embeds = append(embeds, statusErrorEmbed(entry.ChainName, addr, entry.Error, b.now()))
			continue
		}
		embed := statusEmbed(entry.ChainName, addr, entry.Status)
		if !entry.Registration.NotificationsEnabled {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Alerts", Value: "Paused", Inline: true})
		}
		embeds = append(embeds, embed)
	}
	return reply{
		content: fmt.Sprintf("Monitoring **%d** validator(s):", len(entries)),
		embeds:  embeds,
	}
}

func (b *Bot) handleValidatorStatus(ctx context.Context, inv invocation) reply {
	chainName, addr := inv.str(optionChain), inv.str(optionAddress)
	status, err := b.commands.Status(ctx, chainName, addr)
	if err != nil {
		b.logCommandError(inv, err)
		return reply{embeds: []*discordgo.MessageEmbed{statusErrorEmbed(chainName, addr, userMessage(err), b.now())}, failed: true}
	}
	return reply{embeds: []*discordgo.MessageEmbed{statusEmbed(chainName, addr, status)}}
}

func (b *Bot) handleSetValidatorNotifications(ctx context.Context, inv invocation) reply {
	enabled := inv.boolean(optionEnabled)
	if enabled == nil {
		return reply{content: "The `enabled` option is required.", failed: true}
	}
	addr := inv.str(optionAddress)
	if err := b.commands.SetValidatorNotifications(ctx, inv.userID, inv.str(optionChain), addr, *enabled); err != nil {
		return b.errorReply(inv, err)
	}
	return reply{content: successMessage("Alerts for `%s` are now %s.", addr, onOff(*enabled))}
}

func (b *Bot) handleSetChainNotifications(ctx context.Context, inv invocation) reply {
	chainName := inv.str(optionChain)
	pref, err := b.commands.SetChainNotifications(ctx, inv.channelID, chainName, service.ChainPreferenceUpdate{
		GovernanceAlerts: inv.boolean(optionGovernance),
		UpgradeAlerts:    inv.boolean(optionUpgrade),
		MentionHere:      inv.boolean(optionMentionHere),
	})
	if err != nil {
		return b.errorReply(inv, err)
	}
	return reply{content: successMessage("Notification settings for **%s** in this channel: governance %s, upgrades %s, @here %s.",
		strings.ToUpper(chainName),
		onOff(pref.GovernanceAlertsEnabled),
		onOff(pref.UpgradeAlertsEnabled),
		onOff(pref.MentionHereOnAlert))}
}

func (b *Bot) handleTestNotification(ctx context.Context, inv invocation) reply {
	if err := b.commands.SendTestNotification(ctx, inv.channelID, inv.userID); err != nil {
		return b.errorReply(inv, err)
	}
	return reply{content: infoMessage("A test notification has been queued for this channel.")}
}

func (b *Bot) errorReply(inv invocation, err error) reply {
	b.logCommandError(inv, err)
	return reply{embeds: []*discordgo.MessageEmbed{errorEmbed(userMessage(err))}, failed: true}
}

func (b *Bot) logCommandError(inv invocation, err error) {
	entry := b.logger.WithFields(logrus.Fields{
		"command": inv.name,
		"user":    inv.userID,
		"channel": inv.channelID,
		"error":   err,
	})
	switch utils.ErrorCode(err) {
	case utils.ErrCodeInternal, utils.ErrCodeDatabase:
		entry.Error("Command failed")
	default:
		entry.Debug("Command rejected")
	}
}

// userMessage returns the user facing part of err
func userMessage(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case utils.ErrCodeDatabase, utils.ErrCodeInternal:
			return "Something went wrong on our side. Please try again later."
		}
		return appErr.Message
	}
	return "Something went wrong on our side. Please try again later."
}
