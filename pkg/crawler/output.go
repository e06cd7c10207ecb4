package crawler

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"contact-scraper/pkg/config"
	"contact-scraper/pkg/models"
	"contact-scraper/pkg/utils"
)

// OutputManager owns the files a run writes under <output_base_dir>/<site key>:
// the CSV report, the debug page source and the YAML run metadata.
type OutputManager struct {
	log           *logrus.Entry
	appCfg        *config.AppConfig
	siteCfg       *config.SiteConfig
	siteKey       string
	siteOutputDir string

	runID     string
	renderer  config.Renderer
	resumed   bool
	startTime time.Time

	targets   []models.TargetMetadata
	targetsMu sync.Mutex
}

// NewOutputManager creates an OutputManager. Nothing touches the filesystem until a write.
func NewOutputManager(log *logrus.Entry, appCfg *config.AppConfig, siteCfg *config.SiteConfig, siteKey string) *OutputManager {
	return &OutputManager{
		log:           log,
		appCfg:        appCfg,
		siteCfg:       siteCfg,
		siteKey:       siteKey,
		siteOutputDir: utils.SiteOutputPath(appCfg.OutputBaseDir, siteKey, ""),
		targets:       make([]models.TargetMetadata, 0),
	}
}

// Start records run identity for the metadata file and resets collected targets
func (om *OutputManager) Start(runID string, renderer config.Renderer, resumed bool) {
	om.runID = runID
	om.renderer = renderer
	om.resumed = resumed
	om.startTime = time.Now()

	om.targetsMu.Lock()
	om.targets = om.targets[:0]
	om.targetsMu.Unlock()
}

// SiteOutputDir returns the directory holding this site's files
func (om *OutputManager) SiteOutputDir() string {
	return om.siteOutputDir
}

// RecordTarget collects one target outcome for the metadata file
func (om *OutputManager) RecordTarget(meta models.TargetMetadata) {
	om.targetsMu.Lock()
	om.targets = append(om.targets, meta)
	om.targetsMu.Unlock()
}

// filePath places filename in the site output directory
func (om *OutputManager) filePath(filename string) string {
	return utils.SiteOutputPath(om.appCfg.OutputBaseDir, om.siteKey, filename)
}

func (om *OutputManager) ensureDir() error {
	if err := os.MkdirAll(om.siteOutputDir, 0755); err != nil {
		return fmt.Errorf("%w: creating output dir '%s': %w", utils.ErrFilesystem, om.siteOutputDir, err)
	}
	return nil
}

// WriteReport writes records as CSV in the order given and returns the file path.
// Columns are <target header>, Email, <entity header>, URL.
func (om *OutputManager) WriteReport(records []models.ContactRecord) (string, error) {
	if err := om.ensureDir(); err != nil {
		return "", err
	}
	path := om.filePath(om.siteCfg.ReportFilename)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: creating report '%s': %w", utils.ErrFilesystem, path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{om.siteCfg.TargetColumnHeader, "Email", om.siteCfg.EntityColumnHeader, "URL"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("%w: writing report header: %w", utils.ErrFilesystem, err)
	}
	for _, rec := range records {
		row := []string{rec.Target.Name, rec.Email, rec.AssociatedEntities, rec.SourceURL}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("%w: writing report row for '%s': %w", utils.ErrFilesystem, rec.Email, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("%w: flushing report '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err := file.Sync(); err != nil {
		om.log.Warnf("Error syncing report file '%s': %v", path, err)
	}
	return path, nil
}

// WriteDebugArtifact writes the raw page source verbatim and returns the file path
func (om *OutputManager) WriteDebugArtifact(source string) (string, error) {
	if err := om.ensureDir(); err != nil {
		return "", err
	}
	path := om.filePath(om.siteCfg.DebugFilename)
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		return "", fmt.Errorf("%w: writing debug artifact '%s': %w", utils.ErrFilesystem, path, err)
	}
	return path, nil
}

// WriteMetadata writes the run metadata YAML when enabled for the site
func (om *OutputManager) WriteMetadata(report *models.CrawlReport, finalState models.RunState) error {
	if !config.GetEffectiveEnableMetadataYAML(*om.siteCfg, *om.appCfg) {
		om.log.Debug("YAML metadata output is disabled.")
		return nil
	}
	if err := om.ensureDir(); err != nil {
		return err
	}

	om.targetsMu.Lock()
	targets := make([]models.TargetMetadata, len(om.targets))
	copy(targets, om.targets)
	om.targetsMu.Unlock()

	metadata := models.RunMetadata{
		RunID:             om.runID,
		SiteKey:           om.siteKey,
		RootURL:           om.siteCfg.RootURL,
		Renderer:          string(om.renderer),
		Resumed:           om.resumed,
		CrawlStartTime:    om.startTime,
		CrawlEndTime:      time.Now(),
		FinalState:        finalState,
		TargetsDiscovered: report.TargetsDiscovered,
		TargetsProcessed:  report.TargetsProcessed,
		TargetsSucceeded:  report.TargetsSucceeded,
		TotalRecords:      len(report.Records),
		UniqueEmails:      len(report.UniqueEmails),
		UniquePhones:      len(report.UniquePhones),
		Targets:           targets,
	}

	yamlData, err := yaml.Marshal(&metadata)
	if err != nil {
		return fmt.Errorf("%w: encoding run metadata for site '%s': %w", utils.ErrParsing, om.siteKey, err)
	}

	path := om.filePath(config.GetEffectiveMetadataYAMLFilename(*om.appCfg))
	if err := os.WriteFile(path, yamlData, 0644); err != nil {
		return fmt.Errorf("%w: writing metadata '%s': %w", utils.ErrFilesystem, path, err)
	}
	om.log.Infof("Wrote run metadata (%d targets) to %s", len(targets), path)
	return nil
}
