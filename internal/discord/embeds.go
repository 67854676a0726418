package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/service"
)

const (
	colorBlue    = 0x3498DB
	colorRed     = 0xE74C3C
	colorDarkRed = 0x992D22
	colorGreen   = 0x2ECC71
)

// maxEmbedsPerMessage is the Discord limit of embeds in a single message
const maxEmbedsPerMessage = 10

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func helpEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Cosmos Validator Monitor",
		Description: "Keeps an eye on your validators and chain governance so you don't have to.",
		Color:       colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Core Features",
				Value: "- **Multi-Chain Support**: Monitor validators across the supported networks.\n" +
					"- **Real-time Alerting**: Get notified on jailing, status changes and missed blocks.\n" +
					"- **Governance & Upgrade Tracking**: Stay informed about proposals and network upgrades.\n" +
					"- **On-demand Status Checks**: Instantly check any validator's status.",
			},
			{
				Name: "Available Commands",
				Value: "- `/register`: Add a validator for monitoring.\n" +
					"- `/unregister`: Remove a validator from your list.\n" +
					"- `/myvalidators`: List all validators you are monitoring.\n" +
					"- `/validator_status`: Get an instant status report for a validator.\n" +
					"- `/set_validator_notifications`: Pause or resume alerts for a validator.\n" +
					"- `/set_chain_notifications`: Configure governance/upgrade alerts for a chain in this channel.\n" +
					"- `/list_chains`: View all supported networks.\n" +
					"- `/test_notification`: Send a sample alert to this channel.",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Your reliable Cosmos companion."},
	}
}

func chainsEmbed(chains []service.ChainInfo) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Supported Networks",
		Description: "The following networks are supported by the monitoring service.",
		Color:       colorGreen,
	}
	if len(chains) == 0 {
		embed.Description = "No networks are configured."
		return embed
	}
	for _, c := range chains {
		tracking := "Disabled"
		if c.MissedBlocksSupported {
			tracking = "Enabled"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   strings.ToUpper(c.Name),
			Value:  fmt.Sprintf("**Token:** %s\n**Chain ID:** `%s`\n**Missed Blocks:** %s", c.Symbol, c.ChainID, tracking),
			Inline: true,
		})
	}
	return embed
}

func statusEmbed(chainName, address string, status *models.ValidatorStatus) *discordgo.MessageEmbed {
	snap := status.Snapshot
	color := colorBlue
	if snap.Jailed {
		color = colorRed
	}

	jailed := "No"
	if snap.Jailed {
		jailed = "Yes"
	}
	missed := "N/A"
	if snap.MissedBlocksCount != nil {
		missed = strconv.FormatInt(*snap.MissedBlocksCount, 10)
	}
	uptime := "N/A"
	if status.Uptime != nil {
		uptime = "`" + models.ProgressBar(*status.Uptime) + "`"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Validator Status: " + snap.Moniker,
		Description: fmt.Sprintf("Chain: **%s**\nAddress: `%s`", strings.ToUpper(chainName), address),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: snap.BondingStatus.Label(), Inline: true},
			{Name: "Jailed", Value: jailed, Inline: true},
			{Name: "Missed Blocks", Value: missed, Inline: true},
			{Name: "Total Stake", Value: status.StakeDisplay, Inline: true},
			{Name: "Estimated Uptime", Value: uptime},
		},
		Timestamp: timestamp(snap.ObservedAt),
	}
	if status.LatestHeight > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Latest block %d", status.LatestHeight)}
	}
	return embed
}

func statusErrorEmbed(chainName, address, reason string, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "🔴 Error: Validator Data Retrieval Failed",
		Description: fmt.Sprintf("Could not retrieve status for `%s` on **%s**.\n**Reason:** `%s`",
			address, strings.ToUpper(chainName), reason),
		Color:     colorDarkRed,
		Timestamp: timestamp(now),
	}
}

func errorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔴 Error",
		Description: message,
		Color:       colorDarkRed,
	}
}

func successMessage(format string, args ...any) string {
	return "✅ Success: " + fmt.Sprintf(format, args...)
}

func infoMessage(format string, args ...any) string {
	return "ℹ️ " + fmt.Sprintf(format, args...)
}

// chunkEmbeds splits embeds into message sized batches
func chunkEmbeds(embeds []*discordgo.MessageEmbed) [][]*discordgo.MessageEmbed {
	var out [][]*discordgo.MessageEmbed
	for len(embeds) > maxEmbedsPerMessage {
		out = append(out, embeds[:maxEmbedsPerMessage])
		embeds = embeds[maxEmbedsPerMessage:]
	}
	if len(embeds) > 0 {
		out = append(out, embeds)
	}
	return out
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
