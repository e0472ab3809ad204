package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/ayrohq/ayro/internal/identity"
	"github.com/ayrohq/ayro/internal/models"
)

type fakeResolver struct {
	integration    models.Integration
	integrationErr error
	users          map[string]models.User
}

func (f *fakeResolver) ResolveSlackIntegration(context.Context, string) (models.Integration, error) {
	return f.integration, f.integrationErr
}

func (f *fakeResolver) ResolveSlackUser(_ context.Context, channelID string) (models.User, error) {
	u, ok := f.users[channelID]
	if !ok {
		return models.User{}, identity.ErrUserNotFound
	}
	return u, nil
}

type fakeBusiness struct {
	calls      []string
	profileErr error
	agentErr   error
	confirmed  models.ChatMessage
}

func (f *fakeBusiness) PostProfile(context.Context, models.Integration, models.User) error {
	f.calls = append(f.calls, "profile")
	return f.profileErr
}

func (f *fakeBusiness) PostHelp(context.Context, models.Integration, string, string) error {
	f.calls = append(f.calls, "help")
	return nil
}

func (f *fakeBusiness) PostUserNotFound(context.Context, models.Integration, string, string) error {
	f.calls = append(f.calls, "user_not_found")
	return nil
}

func (f *fakeBusiness) PostMessageError(context.Context, models.Integration, string, string) error {
	f.calls = append(f.calls, "message_error")
	return nil
}

func (f *fakeBusiness) PostProfileError(context.Context, models.Integration, string, string) error {
	f.calls = append(f.calls, "profile_error")
	return nil
}

func (f *fakeBusiness) GetAgent(_ context.Context, _ models.Integration, slackUserID string) (models.Agent, error) {
	f.calls = append(f.calls, "get_agent")
	return models.Agent{ID: slackUserID, Name: "Bia"}, f.agentErr
}

func (f *fakeBusiness) ConfirmMessage(_ context.Context, _ models.Integration, _ string, _ models.User, msg models.ChatMessage) error {
	f.calls = append(f.calls, "confirm")
	f.confirmed = msg
	return nil
}

type fakePusher struct {
	pushFunc func(agent models.Agent, user models.User, text string) (models.ChatMessage, error)
}

func (f *fakePusher) PushMessage(_ context.Context, agent models.Agent, user models.User, text string, _ models.Channel) (models.ChatMessage, error) {
	return f.pushFunc(agent, user, text)
}

func newService(business *fakeBusiness, pusher *fakePusher) *Service {
	resolver := &fakeResolver{
		integration: models.Integration{AppID: "app-1", Channel: models.ChannelSlack},
		users: map[string]models.User{
			"C1": {ID: "user-1", AppID: "app-1", FirstName: "Ana"},
			"C9": {ID: "user-9", AppID: "other-app"},
		},
	}
	return NewService(nil, resolver, business, pusher)
}

func lastCall(b *fakeBusiness) string {
	if len(b.calls) == 0 {
		return ""
	}
	return b.calls[len(b.calls)-1]
}

func TestSend(t *testing.T) {
	t.Parallel()
	business := &fakeBusiness{}
	var pushedText string
	pusher := &fakePusher{pushFunc: func(agent models.Agent, user models.User, text string) (models.ChatMessage, error) {
		pushedText = text
		return models.ChatMessage{ID: "m1", UserID: user.ID, Agent: &agent, Text: text}, nil
	}}
	svc := newService(business, pusher)

	err := svc.Handle(context.Background(), Command{TeamID: "T1", ChannelID: "C1", UserID: "U1", Command: "/send", Text: " on it! "})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pushedText != "on it!" {
		t.Fatalf("unexpected pushed text %q", pushedText)
	}
	if lastCall(business) != "confirm" || business.confirmed.ID != "m1" {
		t.Fatalf("expected confirmation, calls=%v", business.calls)
	}
}

func TestSend_Failures(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		cmd      Command
		agentErr error
		pushErr  error
		want     string
	}{
		{name: "empty text shows help", cmd: Command{ChannelID: "C1", Command: "/send"}, want: "help"},
		{name: "unbound channel", cmd: Command{ChannelID: "C404", Command: "/send", Text: "hi"}, want: "user_not_found"},
		{name: "channel of another app", cmd: Command{ChannelID: "C9", Command: "/send", Text: "hi"}, want: "user_not_found"},
		{name: "agent lookup fails", cmd: Command{ChannelID: "C1", Command: "/send", Text: "hi"}, agentErr: errors.New("users.info"), want: "message_error"},
		{name: "push fails", cmd: Command{ChannelID: "C1", Command: "/send", Text: "hi"}, pushErr: errors.New("no device"), want: "message_error"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			business := &fakeBusiness{agentErr: tc.agentErr}
			pusher := &fakePusher{pushFunc: func(models.Agent, models.User, string) (models.ChatMessage, error) {
				return models.ChatMessage{}, tc.pushErr
			}}
			svc := newService(business, pusher)
			if err := svc.Handle(context.Background(), tc.cmd); err != nil {
				t.Fatalf("expected ephemeral answer, got error %v", err)
			}
			if lastCall(business) != tc.want {
				t.Fatalf("expected %s, calls=%v", tc.want, business.calls)
			}
		})
	}
}

func TestProfileAndHelp(t *testing.T) {
	t.Parallel()
	business := &fakeBusiness{}
	svc := newService(business, &fakePusher{})
	ctx := context.Background()

	if err := svc.Handle(ctx, Command{ChannelID: "C1", Command: "/profile"}); err != nil {
		t.Fatalf("profile: %v", err)
	}
	if lastCall(business) != "profile" {
		t.Fatalf("expected profile post, calls=%v", business.calls)
	}

	business.profileErr = errors.New("slack down")
	_ = svc.Handle(ctx, Command{ChannelID: "C1", Command: "/PROFILE"})
	if lastCall(business) != "profile_error" {
		t.Fatalf("expected profile error, calls=%v", business.calls)
	}

	_ = svc.Handle(ctx, Command{ChannelID: "C1", Command: "/dance"})
	if lastCall(business) != "help" {
		t.Fatalf("unknown command should answer help, calls=%v", business.calls)
	}
}

func TestHandle_UnknownWorkspace(t *testing.T) {
	t.Parallel()
	business := &fakeBusiness{}
	svc := NewService(nil, &fakeResolver{integrationErr: identity.ErrIntegrationNotFound}, business, &fakePusher{})
	err := svc.Handle(context.Background(), Command{TeamID: "T404", Command: "/help"})
	if !errors.Is(err, identity.ErrIntegrationNotFound) {
		t.Fatalf("expected ErrIntegrationNotFound, got %v", err)
	}
	if len(business.calls) != 0 {
		t.Fatalf("expected no slack calls, got %v", business.calls)
	}
}
