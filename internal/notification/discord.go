package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

const (
	colorCritical = 0xE74C3C
	colorWarning  = 0xF39C12
	colorInfo     = 0x3498DB
)

// MessageSession is the part of *discordgo.Session used to post alerts
type MessageSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSender posts alerts as embeds to the alert's channel
type DiscordSender struct {
	session MessageSession
}

// NewDiscordSender creates a sender on an open session
func NewDiscordSender(session MessageSession) *DiscordSender {
	return &DiscordSender{session: session}
}

// Name implements Sender
func (ds *DiscordSender) Name() string { return "discord" }

// Send implements Sender
func (ds *DiscordSender) Send(ctx context.Context, alert *models.Alert) error {
	if alert.ChannelID == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Alert has no channel", alert.ID)
	}
	_, err := ds.session.ChannelMessageSendComplex(alert.ChannelID, BuildMessage(alert), discordgo.WithContext(ctx))
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeConnection, "Failed to send Discord message", err)
	}
	return nil
}

// BuildMessage renders an alert as a Discord message with one embed
func BuildMessage(alert *models.Alert) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{BuildEmbed(alert)},
	}
	if content := mentionLine(alert); content != "" {
		msg.Content = content
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{Users: alert.MentionUserIDs}
		if alert.MentionHere {
			msg.AllowedMentions.Parse = []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeEveryone}
		}
	}
	return msg
}

// BuildEmbed renders the alert body
func BuildEmbed(alert *models.Alert) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       severityIcon(alert.Severity) + " " + alert.Title,
		Description: alert.Description,
		Color:       severityColor(alert.Severity),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Chain: " + alert.ChainID},
	}
	for _, f := range alert.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	ts := alert.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	embed.Timestamp = ts.UTC().Format(time.RFC3339)
	return embed
}

func severityColor(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return colorCritical
	case models.SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}
