package core

import (
	"context"
	"fmt"

	"github.com/jo-hoe/roadwatch/internal/backend/database"
)

func (service *CoreService) Reports() ([]*database.Report, error) {
	return service.databaseService.GetReports()
}

func (service *CoreService) Report(id string) (*database.Report, error) {
	return service.databaseService.GetReportByID(id)
}

// ReportImage loads the annotated image stored for the report
func (service *CoreService) ReportImage(ctx context.Context, id string) ([]byte, error) {
	report, err := service.databaseService.GetReportByID(id)
	if err != nil {
		return nil, err
	}
	data, err := service.store.Load(ctx, report.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load image of report %s: %w", id, err)
	}
	return data, nil
}

// DeleteReport removes the report row. The stored image and the sighting log entry are kept.
func (service *CoreService) DeleteReport(id string) error {
	return service.databaseService.DeleteReport(id)
}
