package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"sentinel/internal/alerts"
	"sentinel/internal/catalog"
	"sentinel/internal/config"
	"sentinel/internal/correlate"
	"sentinel/internal/detect"
	"sentinel/internal/metrics"
	"sentinel/internal/model"
	"sentinel/internal/storage"
)

// Engine owns the detector set and fans each inbound event out to the
// detectors subscribed to its stream kind. Detector invocations are
// isolated: a panic in one detector is logged and never reaches another.
type Engine struct {
	logger    *slog.Logger
	metrics   *metrics.Store
	alerts    *alerts.Store
	writer    *alerts.Writer
	store     storage.Store
	cfg       atomic.Value
	det       atomic.Value // *detectorSet
	products  map[string]catalog.Product
	customers map[string]catalog.Customer

	started         time.Time
	eventsProcessed atomic.Int64
	alertsGenerated atomic.Int64
}

type detectorSet struct {
	correlator    *correlate.Correlator
	scanAvoidance *detect.ScanAvoidance
	weight        *detect.WeightDiscrepancy
	barcode       *detect.BarcodeSwitching
	queue         *detect.QueueMonitor
	inventory     *detect.InventoryDiscrepancy
	crash         *detect.SystemCrash
	success       *detect.SuccessOperation
}

func NewEngine(cfg *config.Config, logger *slog.Logger, metricsStore *metrics.Store, alertsStore *alerts.Store, writer *alerts.Writer, store storage.Store, products map[string]catalog.Product, customers map[string]catalog.Customer) *Engine {
	e := &Engine{
		logger:    logger,
		metrics:   metricsStore,
		alerts:    alertsStore,
		writer:    writer,
		store:     store,
		products:  products,
		customers: customers,
		started:   time.Now().UTC(),
	}
	e.cfg.Store(cfg)
	e.det.Store(buildDetectors(cfg, logger, products, customers))
	return e
}

func buildDetectors(cfg *config.Config, logger *slog.Logger, products map[string]catalog.Product, customers map[string]catalog.Customer) *detectorSet {
	d := cfg.Detection
	set := &detectorSet{
		correlator:    correlate.New(d.CorrelationWindow, logger),
		scanAvoidance: detect.NewScanAvoidance(d.ScanTimeout, d.DedupeSize, logger),
		weight:        detect.NewWeightDiscrepancy(d.WeightTolerancePct, logger),
		barcode:       detect.NewBarcodeSwitching(d.SwitchTimeWindow, d.MinPriceDifference, d.RecognitionMinAccuracy, d.DedupeSize, logger),
		queue:         detect.NewQueueMonitor(d.LongQueueThreshold, d.LongWaitThreshold, logger),
		inventory:     detect.NewInventoryDiscrepancy(d.DiscrepancyThresholdPct, d.MinRFIDEventsForBaseline, d.DedupeSize, logger),
		crash:         detect.NewSystemCrash(d.MinCrashDuration, d.InactivityTimeout, logger),
		success:       detect.NewSuccessOperation(),
	}
	set.weight.LoadCatalog(products)
	set.barcode.LoadCatalog(products)
	set.success.LoadCustomers(customers)
	return set
}

// UpdateConfig swaps the config read by the periodic loops. Detector
// thresholds are fixed at construction; changing them requires a restart
// or an explicit Reset.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) detectors() *detectorSet {
	return e.det.Load().(*detectorSet)
}

// Run consumes events from in until ctx is cancelled, running the cleanup
// and timeout sweeps alongside. It returns after flushing the file sink.
func (e *Engine) Run(ctx context.Context, in <-chan model.Event) {
	cfg := e.config()
	cleanupTick := time.NewTicker(cfg.Detection.CleanupInterval)
	timeoutTick := time.NewTicker(cfg.Detection.TimeoutInterval)
	defer cleanupTick.Stop()
	defer timeoutTick.Stop()

	if e.logger != nil {
		e.logger.Info("engine started",
			"cleanup_interval", cfg.Detection.CleanupInterval.String(),
			"timeout_interval", cfg.Detection.TimeoutInterval.String())
	}

	for {
		select {
		case ev := <-in:
			e.ProcessEvent(ev)
		case <-timeoutTick.C:
			e.RunTimeoutSweep(time.Now().UTC())
		case <-cleanupTick.C:
			e.RunCleanup(time.Now().UTC())
		case <-ctx.Done():
			if e.writer != nil {
				if err := e.writer.Flush(); err != nil && e.logger != nil {
					e.logger.Error("final sink flush", "error", err)
				}
			}
			if e.logger != nil {
				e.logger.Info("engine stopped",
					"events_processed", e.eventsProcessed.Load(),
					"alerts_generated", e.alertsGenerated.Load())
			}
			return
		}
	}
}

// ProcessEvent dispatches one event to the correlator and to every detector
// subscribed to its kind, emitting any alerts they produce.
func (e *Engine) ProcessEvent(ev model.Event) []model.Alert {
	e.eventsProcessed.Add(1)
	set := e.detectors()
	set.correlator.AddEvent(ev)
	if e.metrics != nil {
		e.metrics.RecordEvent(ev.StationID, ev.Kind, ev.Timestamp)
	}

	var out []model.Alert
	collect := func(name string, fn func() []model.Alert) {
		out = append(out, e.safe(name, fn)...)
	}

	switch ev.Kind {
	case model.KindRFID:
		collect("system_crash", func() []model.Alert { return set.crash.ProcessEvent(ev) })
		collect("scan_avoidance", func() []model.Alert { return set.scanAvoidance.ProcessRFID(ev) })
		collect("inventory", func() []model.Alert { set.inventory.ProcessRFID(ev); return nil })
	case model.KindPOS:
		collect("system_crash", func() []model.Alert { return set.crash.ProcessEvent(ev) })
		collect("scan_avoidance", func() []model.Alert { set.scanAvoidance.ProcessPOS(ev); return nil })
		collect("weight", func() []model.Alert {
			if ev.POS != nil && ev.POS.WeightG != nil {
				set.weight.RecordScale(ev.StationID, *ev.POS.WeightG, ev.Timestamp)
			}
			return set.weight.ProcessPOS(ev)
		})
		collect("barcode_switching", func() []model.Alert { return set.barcode.ProcessPOS(ev) })
		collect("inventory", func() []model.Alert { return set.inventory.ProcessPOS(ev) })
		collect("queue_sessions", func() []model.Alert {
			if ev.CustomerID != "" {
				set.queue.ServiceStart(ev.CustomerID, ev.Timestamp)
			}
			return nil
		})
		collect("success", func() []model.Alert { return set.success.ProcessPOS(ev) })
	case model.KindQueue:
		collect("system_crash", func() []model.Alert { return set.crash.ProcessEvent(ev) })
		collect("queue", func() []model.Alert { return set.queue.ProcessQueue(ev) })
	case model.KindRecognition:
		collect("system_crash", func() []model.Alert { return set.crash.ProcessEvent(ev) })
		collect("barcode_switching", func() []model.Alert { set.barcode.ProcessRecognition(ev); return nil })
	case model.KindInventory:
		collect("inventory", func() []model.Alert { return set.inventory.ProcessSnapshot(ev) })
	default:
		if e.logger != nil {
			e.logger.Warn("unknown stream kind", "kind", ev.Kind)
		}
		return nil
	}

	for _, alert := range out {
		e.emit(alert)
	}
	return out
}

// RunTimeoutSweep invokes the time-based checks that fire without a
// triggering event.
func (e *Engine) RunTimeoutSweep(now time.Time) []model.Alert {
	set := e.detectors()
	var out []model.Alert
	out = append(out, e.safe("scan_avoidance_timeouts", func() []model.Alert {
		return set.scanAvoidance.CheckTimeouts(now)
	})...)
	out = append(out, e.safe("station_timeouts", func() []model.Alert {
		return set.crash.CheckStationTimeouts(now)
	})...)
	for _, alert := range out {
		e.emit(alert)
	}
	return out
}

// RunCleanup prunes every detector's rolling state.
func (e *Engine) RunCleanup(now time.Time) {
	set := e.detectors()
	retention := e.config().Detection.CorrelationRetention
	e.safe("cleanup", func() []model.Alert {
		set.correlator.Cleanup(retention, now)
		set.scanAvoidance.Cleanup(now, retention)
		set.weight.Cleanup(now, retention)
		set.barcode.Cleanup(now, retention)
		set.queue.Cleanup(now, retention)
		set.inventory.Cleanup(now)
		set.crash.Cleanup(now)
		set.success.Cleanup(now)
		return nil
	})
}

func (e *Engine) safe(name string, fn func() []model.Alert) (out []model.Alert) {
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Error("detector panic", "detector", name, "panic", fmt.Sprint(r))
		}
	}()
	return fn()
}

func (e *Engine) emit(alert model.Alert) {
	e.alertsGenerated.Add(1)
	e.alerts.Add(alert)
	if e.writer != nil {
		e.writer.Append(alert)
	}
	if e.metrics != nil {
		e.metrics.RecordAlert(alert)
	}
	if e.store != nil {
		if err := e.store.SaveAlert(context.Background(), alert); err != nil && e.logger != nil {
			e.logger.Error("persist alert", "event_id", alert.EventID, "error", err)
		}
	}
	if e.logger != nil {
		e.logger.Warn("alert generated",
			"event_name", alert.Name,
			"event_id", alert.EventID,
			"station_id", alert.StationID,
			"severity", alert.Severity)
	}
}

// Status returns the running system snapshot served by the API.
func (e *Engine) Status() map[string]any {
	now := time.Now().UTC()
	uptime := now.Sub(e.started)
	processed := e.eventsProcessed.Load()
	perMinute := 0.0
	if uptime > 0 {
		perMinute = float64(processed) / uptime.Minutes()
	}
	return map[string]any{
		"status":            "running",
		"uptime_seconds":    int64(uptime.Seconds()),
		"events_processed":  processed,
		"alerts_generated":  e.alertsGenerated.Load(),
		"events_per_minute": perMinute,
		"pending_alerts":    e.alerts.Pending(),
		"current_time":      now.Format(time.RFC3339),
	}
}

// StationSummary aggregates every detector's view of one station.
func (e *Engine) StationSummary(stationID string) map[string]any {
	set := e.detectors()
	now := time.Now().UTC()
	summary := map[string]any{
		"station_id":         stationID,
		"activity":           set.correlator.StationActivity(stationID, time.Hour, now),
		"queue":              set.queue.Analytics(stationID, time.Hour, now),
		"switching_patterns": set.barcode.SwitchingPatterns(stationID),
		"success":            set.success.SuccessRate(stationID, now),
	}
	if e.metrics != nil {
		if act, ok := e.metrics.Get(stationID); ok {
			summary["metrics"] = act
		}
	}
	if items, ok := set.scanAvoidance.UnscannedItems(now)[stationID]; ok {
		summary["unscanned_items"] = items
	}
	return summary
}

// QueueStatus exposes the live queue view for the API.
func (e *Engine) QueueStatus() map[string]map[string]any {
	return e.detectors().queue.CurrentStatus(time.Now().UTC())
}

// HealthOverview exposes per-station health for the API.
func (e *Engine) HealthOverview() []map[string]any {
	return e.detectors().crash.HealthOverview(time.Now().UTC())
}

// InventoryReport exposes the inventory accuracy report for the API.
func (e *Engine) InventoryReport() map[string]any {
	return e.detectors().inventory.AccuracyReport(time.Now().UTC())
}

// Reset discards all detector and correlator state. Counters keep running.
func (e *Engine) Reset() {
	e.det.Store(buildDetectors(e.config(), e.logger, e.products, e.customers))
	if e.alerts != nil {
		e.alerts.Clear()
	}
	if e.metrics != nil {
		e.metrics.Clear()
	}
}
