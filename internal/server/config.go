package server

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"vpatient/internal/domain"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodySize     = 1 << 20 // 1 MiB
)

// NextPageFunc returns the redirect target after a page has been submitted.
type NextPageFunc func(pageID, patientID string) (string, error)

type Config struct {
	Store domain.ActivityStateStore

	// Optional configuration.
	NextPage NextPageFunc
	// FinalPatient is the patient whose results complete the activity.
	FinalPatient    string
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("activity state store is required")
	}

	// Optional configuration.
	if c.NextPage == nil {
		c.NextPage = SequentialNextPage
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	return nil
}

// SequentialNextPage sends numeric page n to page n+1.
func SequentialNextPage(pageID, _ string) (string, error) {
	n, err := strconv.Atoi(pageID)
	if err != nil || n < 0 {
		return "", fmt.Errorf("page id %q is not a page number", pageID)
	}
	return fmt.Sprintf("/activity/virtualpatient/page/%d/", n+1), nil
}
