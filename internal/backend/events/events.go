// Package events announces new reports to other systems.
package events

import (
	"context"
	"time"
)

// ReportCreated is published after a report has been stored
type ReportCreated struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Detections int       `json:"detections"`
	ImagePath  string    `json:"image_path"`
	Timestamp  time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event ReportCreated) error
	Close() error
}

// Noop drops every event
type Noop struct{}

func (Noop) Publish(context.Context, ReportCreated) error { return nil }
func (Noop) Close() error                                 { return nil }
