package services

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heliowatt/heliowatt/domain"
	herrors "github.com/heliowatt/heliowatt/errors"
	"github.com/heliowatt/heliowatt/log"
)

// maxConcurrentFetches bounds the per-device fan-out of one aggregation
// request.
const maxConcurrentFetches = 4

// AggregateService fans telemetry fetches out across a user's claimed devices
// and reduces the results into one normalized summary. A single unreachable
// device never blanks out the whole result: its failure is recorded as an
// annotation and the remaining devices are summarized normally.
type AggregateService struct {
	tokens    *TokenService
	devices   domain.DeviceRepository
	providers domain.ProviderResolver
	logger    log.Logger
}

// NewAggregateService creates the telemetry aggregator.
func NewAggregateService(tokens *TokenService, devices domain.DeviceRepository, providers domain.ProviderResolver, logger log.Logger) *AggregateService {
	return &AggregateService{
		tokens:    tokens,
		devices:   devices,
		providers: providers,
		logger:    logger,
	}
}

// Summarize fetches and reduces telemetry across all of the user's claimed
// devices for the provider. Credential errors (ErrNotConnected,
// ErrNeedsReauthorization) propagate unchanged.
func (s *AggregateService) Summarize(ctx context.Context, userID, provider string) (*domain.AggregateSummary, error) {
	cred, err := s.tokens.GetValidCredential(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	devices, err := s.devices.ListByUser(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, herrors.ErrNoDevicesClaimed
	}

	adapter, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	// Fan out, one slot per device so reduction order is independent of
	// completion order. Goroutines never return errors: a device failure is
	// recorded in its slot, not propagated.
	unitsByDevice := make([][]domain.TelemetryUnit, len(devices))
	failures := make([]*domain.DeviceFailure, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, device := range devices {
		g.Go(func() error {
			units, fetchErr := adapter.FetchTelemetry(gctx, cred, device)
			if fetchErr != nil {
				s.logger.Warn(gctx, "device telemetry fetch failed", map[string]interface{}{
					"user_id":   userID,
					"provider":  provider,
					"device_id": device.DeviceID,
					"cause":     fetchErr.Error(),
				})
				failures[i] = &domain.DeviceFailure{
					DeviceID: device.DeviceID,
					Reason:   "telemetry fetch failed",
				}
				return nil
			}
			unitsByDevice[i] = units
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := reduce(provider, devices, unitsByDevice)
	for _, failure := range failures {
		if failure != nil {
			summary.FailedDevices = append(summary.FailedDevices, *failure)
		}
	}
	return summary, nil
}

// reduce deterministically folds the fetched units into the summary. Units
// are sorted by serial within each device before the single best/worst pass,
// so ties resolve to the first unit in device-then-serial order regardless of
// fetch completion order.
func reduce(provider string, devices []*domain.ConnectedDevice, unitsByDevice [][]domain.TelemetryUnit) *domain.AggregateSummary {
	summary := &domain.AggregateSummary{Provider: provider}

	var ordered []domain.TelemetryUnit
	for i := range devices {
		units := append([]domain.TelemetryUnit(nil), unitsByDevice[i]...)
		sort.SliceStable(units, func(a, b int) bool {
			return units[a].SerialNumber < units[b].SerialNumber
		})
		ordered = append(ordered, units...)
	}

	foldInto(&summary.UnitCount, &summary.EnergyWhTotal, &summary.EnergyWhPerUnit,
		&summary.BestUnitSerial, &summary.WorstUnitSerial, &summary.LastReportAt, ordered)

	// Per-array sub-summaries for vendors reporting grouped units. Units
	// without an array id are site-level readings and stay ungrouped.
	grouped := make(map[string][]domain.TelemetryUnit)
	for _, unit := range ordered {
		if unit.ArrayID != "" {
			grouped[unit.ArrayID] = append(grouped[unit.ArrayID], unit)
		}
	}
	arrayIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		arrayIDs = append(arrayIDs, id)
	}
	sort.Strings(arrayIDs)
	for _, id := range arrayIDs {
		units := grouped[id]
		sort.SliceStable(units, func(a, b int) bool {
			return units[a].SerialNumber < units[b].SerialNumber
		})
		arraySummary := domain.ArraySummary{ArrayID: id, Units: units}
		foldInto(&arraySummary.UnitCount, &arraySummary.EnergyWhTotal, &arraySummary.EnergyWhPerUnit,
			&arraySummary.BestUnitSerial, &arraySummary.WorstUnitSerial, &arraySummary.LastReportAt, units)
		summary.Arrays = append(summary.Arrays, arraySummary)
	}
	return summary
}

// foldInto is the shared reduction over one ordered unit slice. Best/worst are
// purely energy-magnitude based: a silent unit still contributed historical
// energy and competes like any other.
func foldInto(count *int, total, perUnit *float64, best, worst *string, lastReport *time.Time, units []domain.TelemetryUnit) {
	if len(units) == 0 {
		return
	}
	bestIdx, worstIdx := 0, 0
	for i, unit := range units {
		*total += unit.EnergyWh
		if unit.EnergyWh > units[bestIdx].EnergyWh {
			bestIdx = i
		}
		if unit.EnergyWh < units[worstIdx].EnergyWh {
			worstIdx = i
		}
		if unit.LastReportAt.After(*lastReport) {
			*lastReport = unit.LastReportAt
		}
	}
	*count = len(units)
	*perUnit = *total / float64(len(units))
	*best = units[bestIdx].SerialNumber
	*worst = units[worstIdx].SerialNumber
}
