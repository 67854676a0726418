// File: internal/discord/commands.go
package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const (
	CommandHelp                      = "help"
	CommandListChains                = "list_chains"
	CommandRegister                  = "register"
	CommandUnregister                = "unregister"
	CommandMyValidators              = "myvalidators"
	CommandValidatorStatus           = "validator_status"
	CommandSetValidatorNotifications = "set_validator_notifications"
	CommandSetChainNotifications     = "set_chain_notifications"
	CommandTestNotification          = "test_notification"
)

const (
	optionChain       = "chain"
	optionAddress     = "address"
	optionEnabled     = "enabled"
	optionGovernance  = "governance"
	optionUpgrade     = "upgrade"
	optionMentionHere = "mention_here"
)

func chainOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optionChain,
		Description: "Chain name, e.g. cosmoshub",
		Required:    true,
	}
}

func addressOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optionAddress,
		Description: "Validator operator address (valoper)",
		Required:    true,
	}
}

var commandDefinitions = map[string]*discordgo.ApplicationCommand{
	CommandHelp: {
		Name:        CommandHelp,
		Description: "Show what the bot can do",
	},
	CommandListChains: {
		Name:        CommandListChains,
		Description: "List the supported chains",
	},
	CommandRegister: {
		Name:        CommandRegister,
		Description: "Monitor a validator in this channel",
		Options:     []*discordgo.ApplicationCommandOption{chainOption(), addressOption()},
	},
	CommandUnregister: {
		Name:        CommandUnregister,
		Description: "Stop monitoring one of your validators",
		Options:     []*discordgo.ApplicationCommandOption{chainOption(), addressOption()},
	},
	CommandMyValidators: {
		Name:        CommandMyValidators,
		Description: "Show the current status of all validators you registered",
	},
	CommandValidatorStatus: {
		Name:        CommandValidatorStatus,
		Description: "Fetch the current status of any validator",
		Options:     []*discordgo.ApplicationCommandOption{chainOption(), addressOption()},
	},
	CommandSetValidatorNotifications: {
		Name:        CommandSetValidatorNotifications,
		Description: "Pause or resume alerts for one of your validators",
		Options: []*discordgo.ApplicationCommandOption{
			chainOption(),
			addressOption(),
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        optionEnabled,
				Description: "Whether alerts are sent",
				Required:    true,
			},
		},
	},
	CommandSetChainNotifications: {
		Name:        CommandSetChainNotifications,
		Description: "Configure governance and upgrade alerts for this channel",
		Options: []*discordgo.ApplicationCommandOption{
			chainOption(),
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        optionGovernance,
				Description: "Alert on new proposals and proposal status changes",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        optionUpgrade,
				Description: "Alert on scheduled software upgrades",
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        optionMentionHere,
				Description: "Mention @here on validator alerts",
			},
		},
	},
	CommandTestNotification: {
		Name:        CommandTestNotification,
		Description: "Send a sample alert to this channel",
	},
}

var defaultCommandOrder = []string{
	CommandHelp,
	CommandListChains,
	CommandRegister,
	CommandUnregister,
	CommandMyValidators,
	CommandValidatorStatus,
	CommandSetValidatorNotifications,
	CommandSetChainNotifications,
	CommandTestNotification,
}

// ephemeralCommands reply only to the invoking user
var ephemeralCommands = map[string]bool{
	CommandHelp:                      true,
	CommandMyValidators:              true,
	CommandSetValidatorNotifications: true,
}

// CommandCreator is the part of a session used to register application commands
type CommandCreator interface {
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// RegisterSlashCommands registers the commands for guildID, or globally when guildID is empty.
// When no command names are provided, all known commands are registered.
func RegisterSlashCommands(s CommandCreator, appID, guildID string, logger *logrus.Logger, names ...string) error {
	if appID == "" {
		return fmt.Errorf("discord: application id is required to register slash commands")
	}
	if len(names) == 0 {
		names = defaultCommandOrder
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			logger.WithField("command", name).Warn("Unknown slash command")
			continue
		}

		if _, err := s.ApplicationCommandCreate(appID, guildID, definition); err != nil {
			if isDuplicateCommandError(err) {
				logger.WithField("command", name).Debug("Slash command already registered")
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			logger.WithFields(logrus.Fields{"command": name, "error": err}).Error("Failed to register slash command")
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			msg := strings.ToLower(restErr.Message.Message)
			if strings.Contains(msg, "already exists") {
				return true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}
