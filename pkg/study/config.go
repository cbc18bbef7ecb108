package study

import (
	"time"

	"github.com/juju/errors"

	"github.com/bft-labs/studyctl/pkg/expiration"
	"github.com/bft-labs/studyctl/pkg/notify"
	"github.com/bft-labs/studyctl/pkg/resources"
)

const day = 24 * time.Hour

// Config holds the controller's static configuration.
type Config struct {
	// Phases are summed to compute the study length.
	Phases []expiration.Phase

	// ExpirationKey is the preference holding the deadline.
	ExpirationKey string

	// ResourceID and ResourceKind identify the study stylesheet.
	ResourceID   string
	ResourceKind resources.Kind

	// UITopic is the host notification that ends a deferred start.
	UITopic string
}

// DefaultPhases is a thirty day study.
func DefaultPhases() []expiration.Phase {
	return []expiration.Phase{
		{Name: "pre-treatment", Duration: 7 * day},
		{Name: "treatment", Duration: 14 * day},
		{Name: "post-treatment", Duration: 9 * day},
	}
}

// DefaultConfig returns a Config with every field set.
func DefaultConfig() Config {
	c := Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if len(c.Phases) == 0 {
		c.Phases = DefaultPhases()
	}
	if c.ExpirationKey == "" {
		c.ExpirationKey = expiration.DefaultPrefKey
	}
	if c.ResourceID == "" {
		c.ResourceID = resources.DefaultPanelSheet
	}
	if c.UITopic == "" {
		c.UITopic = notify.UIReadyTopic
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if expiration.StudyLength(c.Phases) <= 0 {
		return errors.Annotate(ErrInvalidConfig, "phases must add up to a positive study length")
	}
	if c.ExpirationKey == "" {
		return errors.Annotate(ErrInvalidConfig, "expiration key is required")
	}
	if c.ResourceID == "" {
		return errors.Annotate(ErrInvalidConfig, "resource id is required")
	}
	if c.UITopic == "" {
		return errors.Annotate(ErrInvalidConfig, "ui topic is required")
	}
	return nil
}
