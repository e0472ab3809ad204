package slack

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	channelPrefix     = "ch"
	maxChannelNameLen = 21
	fallbackName      = "user"
)

// channelName builds the candidate name for attempt n. Attempt 0 is the
// bare name; later attempts append n and shorten the name so the result
// never exceeds maxChannelNameLen runes.
func channelName(fullName string, n int) string {
	name := deburr(strings.TrimSpace(fullName))
	if strings.Trim(slackName(name), "-") == "" {
		name = fallbackName
	}
	if n <= 0 {
		return truncateRunes(channelPrefix+" "+name, maxChannelNameLen)
	}
	suffix := strconv.Itoa(n)
	remaining := maxChannelNameLen - (len(channelPrefix) + len(suffix) + 2)
	return channelPrefix + " " + strings.TrimSpace(truncateRunes(name, remaining)) + " " + suffix
}

// slackName lowercases the candidate and maps it to the characters Slack
// accepts in channel names.
func slackName(candidate string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(candidate) {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune('-')
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func deburr(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
