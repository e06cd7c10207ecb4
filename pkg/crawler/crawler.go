package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"contact-scraper/pkg/config"
	"contact-scraper/pkg/discover"
	"contact-scraper/pkg/extract"
	"contact-scraper/pkg/fetch"
	"contact-scraper/pkg/models"
	"contact-scraper/pkg/process"
	"contact-scraper/pkg/render"
	"contact-scraper/pkg/storage"
	"contact-scraper/pkg/utils"
)

// TargetLogFilename is the checkpoint dump written next to the report when a store is attached
const TargetLogFilename = "targets.log"

// SessionOpener acquires the rendering session for a run
type SessionOpener func(ctx context.Context) (render.Session, error)

// Options carries the optional collaborators of a Coordinator
type Options struct {
	Fetcher *fetch.Fetcher          // robots.txt and the http renderer; nil disables robots checks
	Store   storage.CheckpointStore // nil disables checkpointing and resume replay
	Opener  SessionOpener           // nil opens the configured renderer via render.Open
	Resume  bool                    // Replay checkpointed targets instead of fetching them
	Summary io.Writer               // Operator summary destination, nil = os.Stdout
}

// Coordinator drives one run for a configured site:
// discovery once, then every target in discovery order, then the report.
type Coordinator struct {
	log      *logrus.Entry
	appCfg   *config.AppConfig
	siteCfg  *config.SiteConfig
	siteKey  string
	renderer config.Renderer

	openSession   SessionOpener
	discoverer    *discover.Discoverer
	processor     *process.TargetProcessor
	rateLimiter   *fetch.RateLimiter
	robotsHandler *fetch.RobotsHandler
	store         storage.CheckpointStore
	output        *OutputManager
	summary       io.Writer

	resume        bool
	delay         time.Duration
	politenessKey string
	state         models.RunState
}

// NewCoordinator wires the components for one site. appCfg and siteCfg must already be validated.
func NewCoordinator(appCfg *config.AppConfig, siteCfg *config.SiteConfig, siteKey string, baseLogger *logrus.Entry, opts Options) (*Coordinator, error) {
	logger := baseLogger.WithField("site_key", siteKey)

	rootURL, err := url.Parse(siteCfg.RootURL)
	if err != nil {
		return nil, fmt.Errorf("%w: root_url for site '%s': %w", utils.ErrConfigValidation, siteKey, err)
	}

	delay := config.GetEffectivePolitenessDelay(*siteCfg, *appCfg)
	userAgent := config.GetEffectiveUserAgent(*siteCfg, *appCfg)
	rateLimiter := fetch.NewRateLimiter(delay, logger).WithJitter(appCfg.PolitenessJitter)

	c := &Coordinator{
		log:           logger,
		appCfg:        appCfg,
		siteCfg:       siteCfg,
		siteKey:       siteKey,
		renderer:      config.GetEffectiveRenderer(*siteCfg, *appCfg),
		openSession:   opts.Opener,
		discoverer:    discover.NewDiscoverer(siteCfg.TargetLinkMarkers, appCfg.ReadyTimeout, logger),
		processor:     process.NewTargetProcessor(siteCfg.EntityLinkMarker, appCfg.ReadyTimeout, logger),
		rateLimiter:   rateLimiter,
		store:         opts.Store,
		output:        NewOutputManager(logger, appCfg, siteCfg, siteKey),
		summary:       opts.Summary,
		resume:        opts.Resume,
		delay:         delay,
		politenessKey: rootURL.Hostname(),
		state:         models.RunStateIdle,
	}
	if c.summary == nil {
		c.summary = os.Stdout
	}

	if c.openSession == nil {
		renderOpts := render.Options{
			Renderer: c.renderer,
			Chrome: render.ChromeOptions{
				Browser:     appCfg.Browser,
				UserAgent:   userAgent,
				SettleDelay: appCfg.SettleDelay,
			},
			Fetcher: opts.Fetcher,
		}
		c.openSession = func(ctx context.Context) (render.Session, error) {
			return render.Open(ctx, renderOpts, logger)
		}
	}

	if config.GetEffectiveRespectRobots(*siteCfg, *appCfg) {
		if opts.Fetcher == nil {
			logger.Warn("respect_robots is set but no fetcher is available, robots.txt will not be checked")
		} else {
			c.robotsHandler = fetch.NewRobotsHandler(opts.Fetcher, rateLimiter, userAgent, delay, logger)
		}
	}

	if c.resume && c.store == nil {
		logger.Warn("Resume requested without a checkpoint store, every target will be fetched")
	}

	return c, nil
}

// SessionSetupGuidance is shown to the operator when no rendering session can be opened
const SessionSetupGuidance = "Install Chrome or Chromium, set browser.exec_path in the config to its binary, " +
	"or rerun with -renderer http for sites that do not need scripts."

// State returns the coordinator's current run state
func (c *Coordinator) State() models.RunState {
	return c.state
}

func (c *Coordinator) setState(s models.RunState) {
	c.log.Debugf("Run state %s -> %s", c.state, s)
	c.state = s
}

// Run executes the run and returns the accumulated report.
// ErrDiscoveryEmpty and ErrNoRecords are soft outcomes; the report is still returned.
// Cancelling ctx stops iteration between targets, finalizes what was collected and returns ctx.Err().
func (c *Coordinator) Run(ctx context.Context) (*models.CrawlReport, error) {
	if c.state.IsTerminal() {
		return nil, fmt.Errorf("coordinator already finished in state %s", c.state)
	}
	runID := uuid.NewString()
	report := models.NewCrawlReport(runID)
	runLog := c.log.WithFields(logrus.Fields{"run_id": runID, "root_url": c.siteCfg.RootURL, "resume": c.resume})
	c.output.Start(runID, c.renderer, c.resume)
	runLog.Infof("Run starting with %s renderer", c.renderer)

	if c.resume && c.store != nil {
		c.logCheckpointState(ctx, runLog)
	}

	session, err := c.openSession(ctx)
	if err != nil {
		c.setState(models.RunStateAborted)
		if !errors.Is(err, utils.ErrSessionSetup) {
			err = fmt.Errorf("%w: %w", utils.ErrSessionSetup, err)
		}
		runLog.Errorf("Could not start rendering session: %v", err)
		fmt.Fprintf(c.summary, "\nCould not start the %s renderer: %v\n%s\n", c.renderer, err, SessionSetupGuidance)
		return report, err
	}
	defer func() {
		if errClose := session.Close(); errClose != nil {
			runLog.Warnf("Error closing rendering session: %v", errClose)
		}
	}()

	// --- Discovering ---
	c.setState(models.RunStateDiscovering)
	targets := c.discoverer.Discover(ctx, session, c.siteCfg.RootURL)
	report.TargetsDiscovered = len(targets)
	runLog.Infof("Found %d target(s) to process", len(targets))

	if len(targets) == 0 {
		c.setState(models.RunStateAborted)
		if ctxErr := ctx.Err(); ctxErr != nil {
			runLog.Warnf("Run cancelled during discovery: %v", ctxErr)
			return report, ctxErr
		}
		runLog.Warn("No targets found, saving page source for debugging")
		c.writeDebugArtifact(ctx, session, runLog)
		return report, fmt.Errorf("%w: no links matched %v on %s",
			utils.ErrDiscoveryEmpty, c.siteCfg.TargetLinkMarkers, c.siteCfg.RootURL)
	}

	// --- Iterating ---
	c.setState(models.RunStateIterating)
	c.iterate(ctx, session, targets, report, runLog)

	// --- Finalizing ---
	c.setState(models.RunStateFinalizing)
	finalState := models.RunStateDone
	if ctx.Err() != nil {
		finalState = models.RunStateAborted
	}
	finalErr := c.finalize(ctx, report, finalState, runLog)
	c.setState(finalState)

	if ctxErr := ctx.Err(); ctxErr != nil {
		runLog.Warnf("Run cancelled after %d of %d target(s): %v", report.TargetsProcessed, len(targets), ctxErr)
		return report, ctxErr
	}
	return report, finalErr
}

// iterate processes targets sequentially, merging each result into report
func (c *Coordinator) iterate(ctx context.Context, session render.Session, targets []models.Target, report *models.CrawlReport, runLog *logrus.Entry) {
	total := len(targets)
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			runLog.Warnf("Stopping before target %d/%d: %v", i+1, total, err)
			return
		}
		targetLog := runLog.WithFields(logrus.Fields{"target": target.Name, "index": i + 1})
		targetLog.Infof("Processing %d/%d: %s", i+1, total, target.Name)

		if res, meta, ok := c.replay(target, targetLog); ok {
			report.Merge(res)
			c.output.RecordTarget(meta)
			continue
		}

		if c.disallowed(ctx, target, targetLog) {
			res := models.TargetResult{
				Err: fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, target.URL),
			}
			report.Merge(res)
			c.checkpoint(target, res, models.TargetStatusSkipped, targetLog)
			c.output.RecordTarget(targetMetadata(target, res, models.TargetStatusSkipped, false))
			continue
		}

		// Politeness is measured from the end of the previous fetch, whatever its outcome
		if err := c.rateLimiter.ApplyDelay(ctx, c.politenessKey, c.delay); err != nil {
			targetLog.Warnf("Politeness wait interrupted: %v", err)
			return
		}
		res := c.processor.Process(ctx, session, target)
		c.rateLimiter.UpdateLastRequestTime(c.politenessKey)

		if ctx.Err() != nil {
			// Leave the target unrecorded so a resumed run fetches it again
			targetLog.Warnf("Target interrupted by cancellation: %v", ctx.Err())
			return
		}

		status := models.TargetStatusSuccess
		if res.Err != nil {
			status = models.TargetStatusFailure
		}
		report.Merge(res)
		c.checkpoint(target, res, status, targetLog)
		c.output.RecordTarget(targetMetadata(target, res, status, false))
	}
}

// replay returns the checkpointed result for target when resuming
func (c *Coordinator) replay(target models.Target, targetLog *logrus.Entry) (models.TargetResult, models.TargetMetadata, bool) {
	if !c.resume || c.store == nil {
		return models.TargetResult{}, models.TargetMetadata{}, false
	}
	status, entry, err := c.store.CheckTargetStatus(target.URL)
	if err != nil {
		targetLog.Warnf("Checkpoint lookup failed, fetching again: %v", err)
		return models.TargetResult{}, models.TargetMetadata{}, false
	}
	if !status.IsReplayable() || entry == nil {
		return models.TargetResult{}, models.TargetMetadata{}, false
	}

	res := models.TargetResult{
		Records: entry.Records,
		Emails:  toSet(entry.Emails),
		Phones:  toSet(entry.Phones),
	}
	if status == models.TargetStatusSkipped {
		res.Err = fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, target.URL)
	}
	targetLog.Infof("Replaying checkpointed result (%s, %d email(s))", status, len(entry.Emails))
	return res, targetMetadata(target, res, status, true), true
}

// disallowed reports whether robots.txt forbids fetching target
func (c *Coordinator) disallowed(ctx context.Context, target models.Target, targetLog *logrus.Entry) bool {
	if c.robotsHandler == nil {
		return false
	}
	u, err := url.Parse(target.URL)
	if err != nil {
		return false
	}
	if c.robotsHandler.Allowed(ctx, u) {
		return false
	}
	targetLog.Warn("Disallowed by robots.txt, skipping")
	return true
}

// checkpoint persists a freshly processed target. Store failures are logged and absorbed.
func (c *Coordinator) checkpoint(target models.Target, res models.TargetResult, status models.TargetStatus, targetLog *logrus.Entry) {
	if c.store == nil {
		return
	}
	now := time.Now().UTC()
	entry := &models.TargetDBEntry{
		Status:      status,
		Name:        target.Name,
		Records:     res.Records,
		Emails:      extract.SortedKeys(res.Emails),
		Phones:      extract.SortedKeys(res.Phones),
		LastAttempt: now,
	}
	if res.Err != nil {
		entry.ErrorType = utils.CategorizeError(res.Err)
	}
	if status == models.TargetStatusSuccess {
		entry.ProcessedAt = now
	}
	if err := c.store.UpdateTargetStatus(target.URL, entry); err != nil {
		targetLog.Warnf("Failed to checkpoint target: %v", err)
	}
}

// finalize writes the report, metadata and summary. Returns ErrNoRecords when nothing was found.
func (c *Coordinator) finalize(ctx context.Context, report *models.CrawlReport, finalState models.RunState, runLog *logrus.Entry) error {
	// Outputs are still written for a cancelled run
	writeCtx := context.WithoutCancel(ctx)
	var result error

	if len(report.Records) == 0 {
		runLog.Warn("No emails found on any pages")
		result = fmt.Errorf("%w: %d target(s) processed", utils.ErrNoRecords, report.TargetsProcessed)
	} else {
		path, err := c.output.WriteReport(report.Records)
		if err != nil {
			runLog.Errorf("Failed to write report: %v", err)
			result = err
		} else {
			runLog.Infof("Saved %d record(s) to %s", len(report.Records), path)
		}
	}

	if err := c.output.WriteMetadata(report, finalState); err != nil {
		runLog.Errorf("Failed to write run metadata: %v", err)
	}

	if c.store != nil {
		logPath := filepath.Join(c.output.SiteOutputDir(), TargetLogFilename)
		if err := c.store.WriteTargetLog(writeCtx, logPath); err != nil {
			runLog.Warnf("Failed to write checkpoint log: %v", err)
		}
	}

	if err := RenderSummary(c.summary, report); err != nil {
		runLog.Warnf("Failed to render summary: %v", err)
	}
	return result
}

// writeDebugArtifact saves the root page markup for diagnosing an empty discovery
func (c *Coordinator) writeDebugArtifact(ctx context.Context, session render.Session, runLog *logrus.Entry) {
	source, err := session.PageSource(ctx)
	if err != nil {
		runLog.Warnf("Could not read page source for debugging: %v", err)
		return
	}
	path, err := c.output.WriteDebugArtifact(source)
	if err != nil {
		runLog.Errorf("Failed to save debug page source: %v", err)
		return
	}
	runLog.Infof("Saved page source to %s", path)
}

// logCheckpointState logs what a resumed run will find in the checkpoint
func (c *Coordinator) logCheckpointState(ctx context.Context, runLog *logrus.Entry) {
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		runLog.Warnf("Could not scan checkpoint: %v", err)
		return
	}
	statuses := make([]string, 0, len(counts))
	total := 0
	for status, n := range counts {
		statuses = append(statuses, fmt.Sprintf("%s=%d", status, n))
		total += n
	}
	sort.Strings(statuses)
	if stored, err := c.store.GetTargetCount(); err == nil && stored != total {
		runLog.Warnf("Checkpoint key count %d differs from scanned %d", stored, total)
	}
	runLog.Infof("Checkpoint holds %d target(s) %v", total, statuses)
}

func targetMetadata(target models.Target, res models.TargetResult, status models.TargetStatus, cached bool) models.TargetMetadata {
	meta := models.TargetMetadata{
		Name:   target.Name,
		URL:    target.URL,
		Status: status,
		Emails: len(res.Emails),
		Phones: len(res.Phones),
		Cached: cached,
	}
	if res.Err != nil {
		meta.ErrorType = utils.CategorizeError(res.Err)
	}
	return meta
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
