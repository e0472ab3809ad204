package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ayrohq/ayro/internal/models"
)

var ErrInvalidConfig = errors.New("invalid plugin configuration")

type GreetingsConfig struct {
	Message string `json:"message" validate:"required,max=1000"`
}

type TimeRange struct {
	Start string `json:"start" validate:"required,datetime=15:04"`
	End   string `json:"end" validate:"required,datetime=15:04"`
}

// TimeRanges holds the opening window per weekday; a nil day is closed
// for office hours purposes and never triggers the auto reply.
type TimeRanges struct {
	Sunday    *TimeRange `json:"sunday,omitempty"`
	Monday    *TimeRange `json:"monday,omitempty"`
	Tuesday   *TimeRange `json:"tuesday,omitempty"`
	Wednesday *TimeRange `json:"wednesday,omitempty"`
	Thursday  *TimeRange `json:"thursday,omitempty"`
	Friday    *TimeRange `json:"friday,omitempty"`
	Saturday  *TimeRange `json:"saturday,omitempty"`
}

func (r TimeRanges) For(day time.Weekday) *TimeRange {
	switch day {
	case time.Sunday:
		return r.Sunday
	case time.Monday:
		return r.Monday
	case time.Tuesday:
		return r.Tuesday
	case time.Wednesday:
		return r.Wednesday
	case time.Thursday:
		return r.Thursday
	case time.Friday:
		return r.Friday
	default:
		return r.Saturday
	}
}

type OfficeHoursConfig struct {
	Timezone  string     `json:"timezone" validate:"required,tzoffset"`
	TimeRange TimeRanges `json:"time_range"`
	Reply     string     `json:"reply" validate:"required,max=1000"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tzoffset", func(fl validator.FieldLevel) bool {
		_, err := parseLocation(fl.Field().String())
		return err == nil
	})
	return v
}

var utcOffsetPattern = regexp.MustCompile(`^UTC([+-])(\d{2}):(\d{2})$`)

// parseLocation accepts "UTC", an IANA zone name or a UTC±HH:MM offset.
func parseLocation(raw string) (*time.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty timezone")
	}
	if raw == "UTC" {
		return time.UTC, nil
	}
	if m := utcOffsetPattern.FindStringSubmatch(raw); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes, _ := strconv.Atoi(m[3])
		if hours > 14 || minutes > 59 {
			return nil, fmt.Errorf("offset out of range: %s", raw)
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(raw, offset), nil
	}
	return time.LoadLocation(raw)
}

func decodeConfig(v *validator.Validate, raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := v.Struct(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// NormalizeConfig validates raw for pluginType and returns it with unknown
// keys dropped.
func NormalizeConfig(pluginType models.PluginType, raw map[string]any) (map[string]any, error) {
	v := newValidator()
	var typed any
	switch pluginType {
	case models.PluginTypeGreetingsMessage:
		typed = &GreetingsConfig{}
	case models.PluginTypeOfficeHours:
		typed = &OfficeHoursConfig{}
	default:
		return nil, fmt.Errorf("%w: unknown plugin type %q", ErrInvalidConfig, pluginType)
	}
	if err := decodeConfig(v, raw, typed); err != nil {
		return nil, err
	}
	data, err := json.Marshal(typed)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
