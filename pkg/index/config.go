package index

import (
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	bomerrors "github.com/matzehuels/superbom/pkg/errors"
)

// Defaults for a fresh [Config].
const (
	DefaultChannel  = "conda-forge"
	DefaultPlatform = "noarch"
)

// deniedChannels are commercial channels whose terms forbid automated
// mirroring. They are never queried.
var deniedChannels = []string{"anaconda", "defaults"}

var platformPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// IsDenied reports whether channel is on the deny-list.
func IsDenied(channel string) bool {
	return slices.Contains(deniedChannels, strings.ToLower(strings.TrimSpace(channel)))
}

// Config is the ordered, deduplicated set of channels and platforms to
// search. It is a plain value: callers build one and pass it to the
// components that need it. Copies share nothing.
type Config struct {
	channels  []string
	platforms []string
	logger    *log.Logger
}

// DefaultConfig returns a Config searching conda-forge/noarch.
func DefaultConfig() Config {
	return Config{
		channels:  []string{DefaultChannel},
		platforms: []string{DefaultPlatform},
	}
}

// WithLogger returns a copy of c that logs dropped values to logger.
func (c Config) WithLogger(logger *log.Logger) Config {
	out := c.clone()
	out.logger = logger
	return out
}

func (c Config) log() *log.Logger {
	if c.logger == nil {
		return log.Default()
	}
	return c.logger
}

// Channels returns the configured channels in insertion order.
func (c Config) Channels() []string { return slices.Clone(c.channels) }

// Platforms returns the configured platforms in insertion order.
func (c Config) Platforms() []string { return slices.Clone(c.platforms) }

// AddChannel appends channel unless it is empty, already present, invalid
// or deny-listed. Dropped channels are logged, never returned as errors.
func (c *Config) AddChannel(channel string) {
	channel = strings.TrimSpace(channel)
	switch {
	case channel == "":
		return
	case IsDenied(channel):
		c.log().Warn("channel is deny-listed, skipping", "channel", channel)
		return
	case slices.Contains(c.channels, channel):
		return
	}
	if err := bomerrors.ValidateChannel(channel); err != nil {
		c.log().Warn("invalid channel, skipping", "channel", channel, "err", err)
		return
	}
	c.channels = append(c.channels, channel)
}

// AddPlatform appends platform unless it is empty, already present or not
// a valid subdir name such as "linux-64" or "noarch".
func (c *Config) AddPlatform(platform string) {
	platform = strings.TrimSpace(platform)
	if platform == "" || slices.Contains(c.platforms, platform) {
		return
	}
	if !platformPattern.MatchString(platform) {
		c.log().Warn("invalid platform, skipping", "platform", platform)
		return
	}
	c.platforms = append(c.platforms, platform)
}

// AddChannelValue adds a channel taken from untyped input such as a decoded
// YAML document. Non-string values are a caller error and are rejected
// with INVALID_CONFIG.
func (c *Config) AddChannelValue(v any) error {
	s, ok := v.(string)
	if !ok {
		return bomerrors.New(bomerrors.ErrCodeInvalidConfig, "channel must be a string, got %T", v)
	}
	c.AddChannel(s)
	return nil
}

// AddPlatformValue is the platform counterpart of [Config.AddChannelValue].
func (c *Config) AddPlatformValue(v any) error {
	s, ok := v.(string)
	if !ok {
		return bomerrors.New(bomerrors.ErrCodeInvalidConfig, "platform must be a string, got %T", v)
	}
	c.AddPlatform(s)
	return nil
}

// WithChannels returns a copy of c whose channel list is replaced by
// channels, filtered through the same rules as [Config.AddChannel]. When
// nothing survives the filter the copy keeps c's channels.
func (c Config) WithChannels(channels ...string) Config {
	out := c.clone()
	out.channels = nil
	for _, ch := range channels {
		out.AddChannel(ch)
	}
	if len(out.channels) == 0 {
		out.channels = slices.Clone(c.channels)
	}
	return out
}

func (c Config) clone() Config {
	return Config{
		channels:  slices.Clone(c.channels),
		platforms: slices.Clone(c.platforms),
		logger:    c.logger,
	}
}
