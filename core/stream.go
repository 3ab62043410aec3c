package core

import (
	"errors"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
)

// StreamLimits stream data retention settings
type StreamLimits struct {
	// MaxAge drop messages older than this, zero keeps them
	MaxAge *time.Duration `json:"max_age,omitempty"`
	// MaxMsgsPerSubject messages kept per subject, one keeps only the latest per entity
	MaxMsgsPerSubject *int64 `json:"max_msgs_per_subject,omitempty"`
}

// StreamParam parameters for the JetStream stream capturing relayed records
type StreamParam struct {
	// Name is the stream name
	Name     string   `json:"name" validate:"required"`
	Subjects []string `json:"subjects" validate:"required,min=1"`
	StreamLimits
}

func applyStreamLimits(targetLimit *StreamLimits, param *nats.StreamConfig) {
	if targetLimit.MaxAge != nil {
		param.MaxAge = *targetLimit.MaxAge
	}
	if targetLimit.MaxMsgsPerSubject != nil {
		param.MaxMsgsPerSubject = *targetLimit.MaxMsgsPerSubject
	}
}

func sameSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string{}, a...)
	y := append([]string{}, b...)
	sort.Strings(x)
	sort.Strings(y)
	for idx := range x {
		if x[idx] != y[idx] {
			return false
		}
	}
	return true
}

// defineStreamConfig build the stream config, starting from the current one if any
func defineStreamConfig(param StreamParam, current *nats.StreamConfig) (nats.StreamConfig, bool) {
	if current == nil {
		jsParams := nats.StreamConfig{
			Name:     param.Name,
			Subjects: param.Subjects,
		}
		applyStreamLimits(&param.StreamLimits, &jsParams)
		return jsParams, true
	}
	updated := *current
	updated.Subjects = param.Subjects
	applyStreamLimits(&param.StreamLimits, &updated)
	changed := !sameSubjects(current.Subjects, updated.Subjects) ||
		current.MaxAge != updated.MaxAge ||
		current.MaxMsgsPerSubject != updated.MaxMsgsPerSubject
	return updated, changed
}

// EnsureStream create the stream, or bring an existing one in line with the parameters
func (c NatsClient) EnsureStream(param StreamParam) error {
	if c.js == nil {
		return errors.New("JetStream is not enabled on this client")
	}
	if err := validator.New().Struct(&param); err != nil {
		log.WithError(err).WithFields(c.LogTags).Error("Invalid stream parameters")
		return err
	}

	info, err := c.js.StreamInfo(param.Name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		jsParams, _ := defineStreamConfig(param, nil)
		if _, err := c.js.AddStream(&jsParams); err != nil {
			log.WithError(err).WithFields(c.LogTags).Errorf(
				"Unable to define new stream %s", param.Name,
			)
			return err
		}
		log.WithFields(c.LogTags).Infof("Defined new stream %s", param.Name)
		return nil
	} else if err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf("Unable to get stream %s info", param.Name)
		return err
	}

	jsParams, changed := defineStreamConfig(param, &info.Config)
	if !changed {
		return nil
	}
	if _, err := c.js.UpdateStream(&jsParams); err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf(
			"Failed to update stream %s", param.Name,
		)
		return err
	}
	log.WithFields(c.LogTags).Infof("Updated stream %s", param.Name)
	return nil
}
