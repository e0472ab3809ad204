package slack

import (
	"context"
	"fmt"

	slackgo "github.com/slack-go/slack"

	"github.com/ayrohq/ayro/internal/models"
)

const (
	helpText         = `Ayro is a customer support tool fully integrated with Slack. Talk to your customers in real time through the channels prefixed with "ch".`
	userNotFoundText = `This channel is not bound to any user. Remember, user channels are prefixed with "ch".`
	messageErrorText = "The message could not be sent, please try again in a few moments."
	profileErrorText = "The user's profile could not be loaded, please try again in a few moments."
	botIntroTemplate = "Hello, I am the Ayro Bot!\n<@%s> just connected this workspace to <https://ayro.io|Ayro>. You can now talk to your customers in real time, right from Slack."
)

// PostProfile posts the user's profile summary into their bound channel.
// Users without a binding are skipped.
func (a *Adapter) PostProfile(ctx context.Context, integration models.Integration, user models.User) error {
	if user.Extra.SlackChannel == nil {
		return nil
	}
	_, api, err := a.client(integration)
	if err != nil {
		return err
	}
	return a.postProfile(ctx, api, user, user.Extra.SlackChannel.ID)
}

// PostHelp answers /help with an ephemeral message.
func (a *Adapter) PostHelp(ctx context.Context, integration models.Integration, channelID, slackUserID string) error {
	return a.postEphemeral(ctx, integration, channelID, slackUserID, helpText, commandAttachments(false)...)
}

// PostUserNotFound tells the agent the channel is not bound to a user.
func (a *Adapter) PostUserNotFound(ctx context.Context, integration models.Integration, channelID, slackUserID string) error {
	return a.postEphemeral(ctx, integration, channelID, slackUserID, userNotFoundText)
}

func (a *Adapter) PostMessageError(ctx context.Context, integration models.Integration, channelID, slackUserID string) error {
	return a.postEphemeral(ctx, integration, channelID, slackUserID, messageErrorText)
}

func (a *Adapter) PostProfileError(ctx context.Context, integration models.Integration, channelID, slackUserID string) error {
	return a.postEphemeral(ctx, integration, channelID, slackUserID, profileErrorText)
}

// GetAgent resolves the Slack member behind a command into an agent.
func (a *Adapter) GetAgent(ctx context.Context, integration models.Integration, slackUserID string) (models.Agent, error) {
	_, api, err := a.client(integration)
	if err != nil {
		return models.Agent{}, err
	}
	member, err := api.GetUserInfoContext(ctx, slackUserID)
	if err != nil {
		return models.Agent{}, fmt.Errorf("users.info %s: %w", slackUserID, err)
	}
	return models.Agent{
		ID:       slackUserID,
		Name:     member.Profile.RealName,
		PhotoURL: member.Profile.Image192,
	}, nil
}

// ConfirmMessage echoes an agent's message into the channel it was sent
// from, labelled "<agent> to <user>".
func (a *Adapter) ConfirmMessage(ctx context.Context, integration models.Integration, channelID string, user models.User, msg models.ChatMessage) error {
	_, api, err := a.client(integration)
	if err != nil {
		return err
	}
	agentName := ""
	var opts []slackgo.MsgOption
	if msg.Agent != nil {
		agentName = msg.Agent.Name
		if msg.Agent.PhotoURL != "" {
			opts = append(opts, slackgo.MsgOptionIconURL(msg.Agent.PhotoURL))
		}
	}
	opts = append(opts,
		slackgo.MsgOptionText(msg.Text, false),
		slackgo.MsgOptionUsername(fmt.Sprintf("%s to %s", agentName, user.FullName())),
		slackgo.MsgOptionAsUser(false),
	)
	if _, _, err := api.PostMessageContext(ctx, channelID, opts...); err != nil {
		return fmt.Errorf("confirm message: %w", err)
	}
	return nil
}

// PostBotIntro greets the workspace in its support channel after install.
func (a *Adapter) PostBotIntro(ctx context.Context, integration models.Integration) error {
	cfg, api, err := a.client(integration)
	if err != nil {
		return err
	}
	if cfg.Channel.ID == "" {
		return nil
	}
	_, _, err = api.PostMessageContext(ctx, cfg.Channel.ID,
		slackgo.MsgOptionText(fmt.Sprintf(botIntroTemplate, cfg.User.ID), false),
		slackgo.MsgOptionUsername(botUsername),
		slackgo.MsgOptionAsUser(false),
	)
	if err != nil {
		return fmt.Errorf("post bot intro: %w", err)
	}
	return nil
}

func (a *Adapter) postEphemeral(ctx context.Context, integration models.Integration, channelID, slackUserID, text string, attachments ...slackgo.Attachment) error {
	_, api, err := a.client(integration)
	if err != nil {
		return err
	}
	opts := []slackgo.MsgOption{
		slackgo.MsgOptionText(text, false),
		slackgo.MsgOptionUsername(botUsername),
		slackgo.MsgOptionAsUser(false),
	}
	if len(attachments) > 0 {
		opts = append(opts, slackgo.MsgOptionAttachments(attachments...))
	}
	if _, err := api.PostEphemeralContext(ctx, channelID, slackUserID, opts...); err != nil {
		return fmt.Errorf("post ephemeral: %w", err)
	}
	return nil
}
