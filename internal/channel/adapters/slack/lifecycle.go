package slack

import (
	"context"
	"fmt"
	"log/slog"

	slackgo "github.com/slack-go/slack"

	"github.com/ayrohq/ayro/internal/models"
)

// ensureChannel makes sure the user is bound to an active Slack channel and
// returns the fresh user snapshot with its binding. Transitions for one
// user are serialized so concurrent sends never create two channels.
//
//	unbound  -> create, bind, introduce
//	bound    -> channel_not_found: create, bind, introduce
//	bound    -> archived: unarchive, introduce ("not_archived" means a
//	            concurrent unarchive already won)
//	bound    -> active: nothing to do
//
// An introduction failure after binding keeps the binding and is returned.
func (a *Adapter) ensureChannel(ctx context.Context, api API, cfg Config, userID, text string) (models.User, models.SlackChannel, error) {
	unlock, err := a.locks.Lock(ctx, userID)
	if err != nil {
		return models.User{}, models.SlackChannel{}, err
	}
	defer unlock()

	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, models.SlackChannel{}, fmt.Errorf("load user: %w", err)
	}
	if user.Extra.SlackChannel == nil {
		return a.createChannel(ctx, api, cfg, user, text)
	}

	binding := *user.Extra.SlackChannel
	info, err := api.GetConversationInfoContext(ctx, &slackgo.GetConversationInfoInput{ChannelID: binding.ID})
	if err != nil {
		if slackErrorIs(err, errChannelNotFound) {
			a.logger.Info("slack channel gone, recreating", slog.String("user_id", user.ID), slog.String("channel_id", binding.ID))
			return a.createChannel(ctx, api, cfg, user, text)
		}
		return user, binding, fmt.Errorf("conversations.info %s: %w", binding.ID, err)
	}
	if !info.IsArchived {
		return user, binding, nil
	}

	if err := api.UnArchiveConversationContext(ctx, binding.ID); err != nil {
		if slackErrorIs(err, errNotArchived) {
			return user, binding, nil
		}
		return user, binding, fmt.Errorf("conversations.unarchive %s: %w", binding.ID, err)
	}
	a.logger.Info("slack channel unarchived", slog.String("user_id", user.ID), slog.String("channel_id", binding.ID))
	if err := a.introduce(ctx, api, cfg, user, binding, text); err != nil {
		return user, binding, fmt.Errorf("introduce user: %w", err)
	}
	return user, binding, nil
}

func (a *Adapter) createChannel(ctx context.Context, api API, cfg Config, user models.User, text string) (models.User, models.SlackChannel, error) {
	created, err := a.createUniqueChannel(ctx, api, user.FullName())
	if err != nil {
		return user, models.SlackChannel{}, err
	}
	binding := models.SlackChannel{ID: created.ID, Name: created.Name}
	user, err = a.store.PatchUser(ctx, user.ID, models.UserPatch{SlackChannel: &binding})
	if err != nil {
		return user, binding, fmt.Errorf("bind slack channel: %w", err)
	}
	a.logger.Info("slack channel created", slog.String("user_id", user.ID), slog.String("channel_id", binding.ID), slog.String("name", binding.Name))
	if err := a.introduce(ctx, api, cfg, user, binding, text); err != nil {
		return user, binding, fmt.Errorf("introduce user: %w", err)
	}
	return user, binding, nil
}

// createUniqueChannel probes suffixes upward from zero until Slack accepts
// the name.
func (a *Adapter) createUniqueChannel(ctx context.Context, api API, fullName string) (*slackgo.Channel, error) {
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := slackName(channelName(fullName, n))
		ch, err := api.CreateConversationContext(ctx, slackgo.CreateConversationParams{ChannelName: name, IsPrivate: true})
		if err == nil {
			if ch.Name == "" {
				ch.Name = name
			}
			return ch, nil
		}
		if !slackErrorIs(err, errNameTaken) {
			return nil, fmt.Errorf("conversations.create %q: %w", name, err)
		}
	}
}

// introduce announces the conversation in the support channel, then posts
// the channel intro and the user profile inside the user channel.
func (a *Adapter) introduce(ctx context.Context, api API, cfg Config, user models.User, binding models.SlackChannel, text string) error {
	if cfg.Channel.ID != "" {
		intro := announcementText(user, binding)
		_, _, err := api.PostMessageContext(ctx, cfg.Channel.ID,
			slackgo.MsgOptionText(intro, false),
			slackgo.MsgOptionUsername(botUsername),
			slackgo.MsgOptionAsUser(false),
			slackgo.MsgOptionAttachments(slackgo.Attachment{
				Fallback: fallbackText(intro),
				Text:     text,
				Color:    primaryColor,
			}),
		)
		if err != nil {
			return fmt.Errorf("announce in %s: %w", cfg.Channel.ID, err)
		}
	}
	_, _, err := api.PostMessageContext(ctx, binding.ID,
		slackgo.MsgOptionText(channelIntroText(user), false),
		slackgo.MsgOptionUsername(botUsername),
		slackgo.MsgOptionAsUser(false),
		slackgo.MsgOptionAttachments(channelIntroAttachments(user)...),
	)
	if err != nil {
		return fmt.Errorf("channel intro: %w", err)
	}
	return a.postProfile(ctx, api, user, binding.ID)
}

func (a *Adapter) postProfile(ctx context.Context, api API, user models.User, channelID string) error {
	app, err := a.store.GetApp(ctx, user.AppID)
	if err != nil {
		return fmt.Errorf("load app: %w", err)
	}
	devices, err := a.store.ListDevices(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	attachments := append([]slackgo.Attachment{userInfoAttachment(app, user)}, deviceAttachments(devices)...)
	_, _, err = api.PostMessageContext(ctx, channelID,
		slackgo.MsgOptionUsername(botUsername),
		slackgo.MsgOptionAsUser(false),
		slackgo.MsgOptionAttachments(attachments...),
	)
	if err != nil {
		return fmt.Errorf("post profile: %w", err)
	}
	return nil
}
