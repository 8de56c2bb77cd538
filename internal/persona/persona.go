// Package persona describes the identity a bot speaks with: the prompt text
// wrapped around the conversation, the model tiers it prefers and how it
// paces its replies.
package persona

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default section headers and suffix used when a persona leaves them empty.
const (
	DefaultProfilesHeader     = "Here are the profiles of the users currently participating:\n\n"
	DefaultConversationHeader = "\nFor context, this is the recent conversation in the Discord channel:\n\n"
	DefaultSuffix             = "Keep your responses concise unless asked otherwise. Never use emojis."
	DefaultHistoryLimit       = 100
	DefaultReplyDelayMin      = 1 * time.Second
	DefaultReplyDelayMax      = 5 * time.Second
)

// ModelTiers overrides the completion provider's tier mapping for one persona.
// Empty fields fall back to the provider configuration.
type ModelTiers struct {
	Low  string `yaml:"low" mapstructure:"low"`
	High string `yaml:"high" mapstructure:"high"`
}

// ReplyDelay bounds the random pause before a reply is sent.
type ReplyDelay struct {
	Min time.Duration `yaml:"min" mapstructure:"min"`
	Max time.Duration `yaml:"max" mapstructure:"max"`
}

// Persona is the configuration value that differentiates one bot from another.
type Persona struct {
	// Name identifies the persona in logs and cache names.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// AuthorName is stored as the author of the bot's own replies.
	AuthorName string `yaml:"author_name" mapstructure:"author_name"`
	// MentionSubstitute replaces the bot's mention token in stored messages,
	// e.g. "<@almighty-zuck>".
	MentionSubstitute string `yaml:"mention_substitute" mapstructure:"mention_substitute"`

	Preamble           string `yaml:"preamble" mapstructure:"preamble" validate:"required"`
	ProfilesHeader     string `yaml:"profiles_header" mapstructure:"profiles_header"`
	ConversationHeader string `yaml:"conversation_header" mapstructure:"conversation_header"`
	Suffix             string `yaml:"suffix" mapstructure:"suffix"`
	HistoryLimit       int    `yaml:"history_limit" mapstructure:"history_limit" validate:"gte=0"`

	Models       ModelTiers `yaml:"models" mapstructure:"models"`
	ReplyDelay   ReplyDelay `yaml:"reply_delay" mapstructure:"reply_delay"`
	ContextCache bool       `yaml:"context_cache" mapstructure:"context_cache"`
}

// WithDefaults returns a copy of p with every empty optional field filled in.
func (p Persona) WithDefaults() Persona {
	if p.AuthorName == "" {
		p.AuthorName = p.Name
	}
	if p.MentionSubstitute == "" && p.Name != "" {
		p.MentionSubstitute = "<@" + slug(p.Name) + ">"
	}
	if p.ProfilesHeader == "" {
		p.ProfilesHeader = DefaultProfilesHeader
	}
	if p.ConversationHeader == "" {
		p.ConversationHeader = DefaultConversationHeader
	}
	if p.Suffix == "" {
		p.Suffix = DefaultSuffix
	}
	if p.HistoryLimit == 0 {
		p.HistoryLimit = DefaultHistoryLimit
	}
	if p.ReplyDelay == (ReplyDelay{}) {
		p.ReplyDelay = ReplyDelay{Min: DefaultReplyDelayMin, Max: DefaultReplyDelayMax}
	}
	return p
}

// Validate reports structural problems that the struct tags cannot express.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("persona name is required")
	}
	if strings.TrimSpace(p.Preamble) == "" {
		return fmt.Errorf("persona %q: preamble is required", p.Name)
	}
	if p.HistoryLimit < 0 {
		return fmt.Errorf("persona %q: history_limit must not be negative", p.Name)
	}
	if p.ReplyDelay.Min < 0 || p.ReplyDelay.Max < p.ReplyDelay.Min {
		return fmt.Errorf("persona %q: reply_delay must satisfy 0 <= min <= max", p.Name)
	}
	return nil
}

// LoadFile reads a persona from a YAML file, applies defaults and validates it.
func LoadFile(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML persona document. Unknown keys are rejected.
func Parse(data []byte) (Persona, error) {
	var p Persona
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Persona{}, fmt.Errorf("decode persona: %w", err)
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	return p, nil
}

func slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
