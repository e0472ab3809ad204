package slack

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	slackgo "github.com/slack-go/slack"

	"github.com/ayrohq/ayro/internal/models"
)

var mentionPattern = regexp.MustCompile(`<([#@])([A-Za-z0-9]+)(?:\|([^>]*))?>`)

// fallbackText strips mrkdwn so notifications read as plain text.
func fallbackText(text string) string {
	text = strings.ReplaceAll(text, "*", "")
	return mentionPattern.ReplaceAllStringFunc(text, func(m string) string {
		parts := mentionPattern.FindStringSubmatch(m)
		label := parts[3]
		if label == "" {
			label = parts[2]
		}
		return parts[1] + label
	})
}

func announcementText(user models.User, binding models.SlackChannel) string {
	return fmt.Sprintf("*%s* wants to talk to your team in channel <#%s|%s>", user.FullName(), binding.ID, binding.Name)
}

func channelIntroText(user models.User) string {
	return fmt.Sprintf("This is the exclusive channel to talk with *%s*.", user.FullName())
}

func channelIntroAttachments(user models.User) []slackgo.Attachment {
	var out []slackgo.Attachment
	if user.RandomName {
		out = append(out, slackgo.Attachment{
			Fallback: "Randomly generated name",
			Text:     "This user's name was randomly generated because no name was assigned to them.",
			Color:    "warning",
		})
	}
	return append(out, commandAttachments(true)...)
}

func commandAttachments(insideChannel bool) []slackgo.Attachment {
	pretext := "In user channels you can use the following commands:"
	if insideChannel {
		pretext = "In this channel you can use the following commands:"
	}
	return []slackgo.Attachment{
		{
			Pretext:  pretext,
			Fallback: "/send command - Send messages to the user",
			Title:    "Send messages to the user",
			Text:     "Command: /send [message]",
			Color:    primaryColor,
		},
		{
			Fallback: "/profile command - See the user's profile",
			Title:    "See the user's profile",
			Text:     "Command: /profile",
			Color:    primaryColor,
		},
	}
}

func userInfoAttachment(app models.App, user models.User) slackgo.Attachment {
	info := []string{"App: " + app.Name}
	if user.Identified {
		info = append(info, "ID: "+user.UID)
	}
	if name := user.FullName(); name != "" {
		if user.RandomName {
			name += " (randomly generated)"
		}
		info = append(info, "Name: "+name)
	}
	if user.Email != "" {
		info = append(info, "Email: "+user.Email)
	}
	if user.SignUpDate != nil {
		info = append(info, "Signed up: "+user.SignUpDate.UTC().Format(time.RFC3339))
	}

	keys := make([]string, 0, len(user.Properties))
	for k := range user.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]slackgo.AttachmentField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slackgo.AttachmentField{Title: k, Value: fmt.Sprint(user.Properties[k]), Short: true})
	}

	return slackgo.Attachment{
		Pretext:    fmt.Sprintf("This is what we know so far about *%s*:", user.FullName()),
		Fallback:   "User information",
		Text:       strings.Join(info, "\n"),
		Fields:     fields,
		MarkdownIn: []string{"text", "pretext"},
		Color:      primaryColor,
	}
}

func deviceAttachments(devices []models.Device) []slackgo.Attachment {
	out := make([]slackgo.Attachment, 0, len(devices))
	for _, d := range devices {
		title := d.Platform.DisplayName()
		out = append(out, slackgo.Attachment{
			Title:      title,
			Fallback:   title,
			Text:       strings.Join(deviceInfoLines(d), "\n"),
			MarkdownIn: []string{"text", "pretext"},
			Color:      primaryColor,
		})
	}
	if len(out) > 0 {
		out[0].Pretext = "These are the latest devices used:"
	}
	return out
}

func deviceInfoLines(d models.Device) []string {
	info := d.Info
	var lines []string
	switch d.Platform {
	case models.PlatformAndroid, models.PlatformIOS:
		if info.AppID != "" && info.AppVersion != "" {
			lines = append(lines, fmt.Sprintf("App version: %s (%s)", info.AppVersion, info.AppID))
		}
		if info.OperatingSystem != "" {
			lines = append(lines, "OS: "+info.OperatingSystem)
		}
		if info.Manufacturer != "" && info.Model != "" {
			lines = append(lines, fmt.Sprintf("Smartphone: %s %s", capitalize(info.Manufacturer), info.Model))
		}
		if info.Carrier != "" {
			lines = append(lines, "Carrier: "+info.Carrier)
		}
	case models.PlatformBrowser:
		if info.BrowserName != "" && info.BrowserVersion != "" {
			lines = append(lines, fmt.Sprintf("Browser: %s %s", capitalize(info.BrowserName), info.BrowserVersion))
		}
		if info.OperatingSystem != "" {
			lines = append(lines, "OS: "+info.OperatingSystem)
		}
		if info.Location != "" {
			lines = append(lines, "Location: "+info.Location)
		}
	case models.PlatformMessenger:
		if info.ProfileName != "" {
			lines = append(lines, fmt.Sprintf("Profile name: %s (<%s|photo>)", info.ProfileName, info.ProfilePicture))
		}
		switch strings.ToLower(info.ProfileGender) {
		case "male":
			lines = append(lines, "Gender: Male")
		case "female":
			lines = append(lines, "Gender: Female")
		}
		if info.ProfileLocale != "" {
			lines = append(lines, "Locale: "+info.ProfileLocale)
		}
		if info.ProfileTimezone != nil {
			lines = append(lines, "Timezone: "+strconv.Itoa(*info.ProfileTimezone))
		}
	}
	return lines
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
