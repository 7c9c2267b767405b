package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/jo-hoe/roadwatch/internal/backend/commands"
	"github.com/jo-hoe/roadwatch/internal/backend/database"
	"github.com/jo-hoe/roadwatch/internal/backend/detection"
	"github.com/jo-hoe/roadwatch/internal/backend/events"
	"github.com/jo-hoe/roadwatch/internal/backend/geocode"
	"github.com/jo-hoe/roadwatch/internal/backend/storage"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// DetectionRequest is one uploaded road photo with the position it was taken at
type DetectionRequest struct {
	Image    []byte
	Filename string
	Location geocode.Coordinates
}

type DetectionResult struct {
	// Annotated is the JPEG encoded image with boxes and labels drawn
	Annotated  []byte
	Detections []detection.Detection
	Report     *database.Report
}

// DetectAndReport runs detection on the uploaded image while resolving the address,
// appends the sighting to the location log and persists the annotated image and report.
// Ledger and event failures are logged and do not fail the request.
func (service *CoreService) DetectAndReport(ctx context.Context, req DetectionRequest) (*DetectionResult, error) {
	if len(req.Image) == 0 {
		return nil, ErrInvalidImage
	}

	var (
		address    string
		processed  []byte
		detections []detection.Detection
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		timeout := time.Duration(service.config.Geocoder.TimeoutSeconds) * time.Second
		address = geocode.ResolveAddress(ctx, service.reverser, req.Location.Latitude, req.Location.Longitude, timeout)
		if err := service.sightings.Append(req.Location.Latitude, req.Location.Longitude, address); err != nil {
			slog.Error("failed to append sighting", "path", service.sightings.Path(), "error", err)
			return fmt.Errorf("%w: %v", ErrSightingLog, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		processed, err = service.preprocess(req.Image)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		detections, err = service.detect(gctx, processed)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	img, err := commands.DecodeImage(processed, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	annotated, err := service.encodeJPEG(detection.Annotate(img, detections))
	if err != nil {
		return nil, err
	}

	path, err := service.store.Save(ctx, storage.ProcessedName(req.Filename), annotated, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("failed to store processed image: %w", err)
	}
	slog.Info("processed image saved", "path", path, "detections", len(detections))

	report := &database.Report{
		Address:    address,
		Latitude:   req.Location.Latitude,
		Longitude:  req.Location.Longitude,
		ImagePath:  path,
		Detections: len(detections),
	}
	if _, err := service.databaseService.CreateReport(report); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	service.recordOnLedger(ctx, report)
	service.publishReport(ctx, report)

	return &DetectionResult{Annotated: annotated, Detections: detections, Report: report}, nil
}

func (service *CoreService) recordOnLedger(ctx context.Context, report *database.Report) {
	txHash, err := service.recorder.Record(ctx, report.Address)
	if err != nil {
		service.metrics.ObserveLedgerFailure()
		slog.Error("failed to record address on ledger", "report_id", report.ID, "tx", txHash, "error", err)
		return
	}
	if txHash == "" {
		return
	}
	if err := service.databaseService.SetLedgerTx(report.ID, txHash); err != nil {
		slog.Error("failed to store ledger transaction", "report_id", report.ID, "tx", txHash, "error", err)
		return
	}
	report.TxHash = txHash
	slog.Info("address recorded on ledger", "report_id", report.ID, "tx", txHash)
}

func (service *CoreService) publishReport(ctx context.Context, report *database.Report) {
	err := service.publisher.Publish(ctx, events.ReportCreated{
		ID:         report.ID,
		Address:    report.Address,
		Latitude:   report.Latitude,
		Longitude:  report.Longitude,
		Detections: report.Detections,
		ImagePath:  report.ImagePath,
		Timestamp:  report.CreatedAt,
	})
	if err != nil {
		slog.Error("failed to publish report event", "report_id", report.ID, "error", err)
	}
}

func (service *CoreService) preprocess(frame []byte) ([]byte, error) {
	return service.invoker.Execute(frame)
}

// detect calls the detector and records latency and per class counts
func (service *CoreService) detect(ctx context.Context, frame []byte) ([]detection.Detection, error) {
	start := time.Now()
	detections, err := service.detector.Detect(ctx, frame)
	service.metrics.ObserveInference(time.Since(start))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	service.metrics.ObserveDetections(lo.Map(detections, func(d detection.Detection, _ int) string {
		return d.ClassName
	}))
	return detections, nil
}

func (service *CoreService) encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: service.config.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}
