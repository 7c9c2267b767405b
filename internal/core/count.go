package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jo-hoe/roadwatch/internal/backend/counter"
	"github.com/jo-hoe/roadwatch/internal/backend/detection"
)

// CountFrame adds the potholes found in frame to the process wide running total
func (service *CoreService) CountFrame(ctx context.Context, frame []byte) (int64, error) {
	return service.observe(ctx, service.tally, frame)
}

// OpenSession registers a streaming client. In connection scope every session
// gets its own counter, otherwise all sessions share the global one.
func (service *CoreService) OpenSession() string {
	id := uuid.NewString()
	tally := service.tally
	if service.config.Counter.Scope == CounterScopeConnection {
		tally = service.newTally(id)
	}
	service.sessions.Set(id, tally)
	service.metrics.ConnectionOpened()
	slog.Debug("session opened", "session_id", id, "scope", service.config.Counter.Scope)
	return id
}

// CountSessionFrame counts frame against the counter of the given session
func (service *CoreService) CountSessionFrame(ctx context.Context, sessionID string, frame []byte) (int64, error) {
	tally, ok := service.sessions.Get(sessionID)
	if !ok {
		return 0, fmt.Errorf("unknown session %s", sessionID)
	}
	return service.observe(ctx, tally, frame)
}

// CloseSession forgets the session and drops its private counter
func (service *CoreService) CloseSession(ctx context.Context, sessionID string) {
	tally, ok := service.sessions.Pop(sessionID)
	if !ok {
		return
	}
	service.metrics.ConnectionClosed()
	if tally == service.tally {
		return
	}
	if err := tally.Reset(ctx); err != nil {
		slog.Warn("failed to reset session counter", "session_id", sessionID, "error", err)
	}
}

func (service *CoreService) SessionCount() int {
	return service.sessions.Count()
}

func (service *CoreService) observe(ctx context.Context, tally counter.Tally, frame []byte) (int64, error) {
	counted := false
	total, err := tally.Observe(ctx, frame, func(ctx context.Context) (int, error) {
		counted = true
		return service.countPotholes(ctx, frame)
	})
	if err == nil && !counted {
		service.metrics.ObserveDuplicateFrame()
	}
	return total, err
}

func (service *CoreService) countPotholes(ctx context.Context, frame []byte) (int, error) {
	processed, err := service.preprocess(frame)
	if err != nil {
		return 0, ErrInvalidFrame
	}
	if !decodable(processed) {
		return 0, ErrInvalidFrame
	}
	detections, err := service.detect(ctx, processed)
	if err != nil {
		return 0, err
	}
	return detection.CountClass(detections, service.config.Detector.TargetClass), nil
}

func decodable(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}
