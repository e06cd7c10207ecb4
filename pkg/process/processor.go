// Package process turns one target page into contact records.
package process

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"contact-scraper/pkg/extract"
	"contact-scraper/pkg/models"
	"contact-scraper/pkg/render"
	"contact-scraper/pkg/utils"
)

const linkSelector = "a[href]"

// TargetProcessor fetches a target through a session and extracts its contacts
type TargetProcessor struct {
	entityMarker string
	readyTimeout time.Duration
	log          *logrus.Entry
}

// NewTargetProcessor creates a processor. Entity label links contain entityMarker and no query string.
func NewTargetProcessor(entityMarker string, readyTimeout time.Duration, log *logrus.Entry) *TargetProcessor {
	return &TargetProcessor{
		entityMarker: entityMarker,
		readyTimeout: readyTimeout,
		log:          log,
	}
}

// IsEntityLink reports whether href points at an entity detail page
func (p *TargetProcessor) IsEntityLink(href string) bool {
	return strings.Contains(href, p.entityMarker) && !strings.Contains(href, "?")
}

func emptyResult(err error) models.TargetResult {
	return models.TargetResult{
		Records: make([]models.ContactRecord, 0),
		Emails:  make(map[string]struct{}),
		Phones:  make(map[string]struct{}),
		Err:     err,
	}
}

// Process fetches target and returns its records, emails and phones.
// Failures never propagate: they yield an empty result with Err set for the caller's bookkeeping.
func (p *TargetProcessor) Process(ctx context.Context, session render.Session, target models.Target) (result models.TargetResult) {
	targetLog := p.log.WithFields(logrus.Fields{"target": target.Name, "url": target.URL})

	defer func() {
		if r := recover(); r != nil {
			targetLog.WithField("stack", string(debug.Stack())).Errorf("PANIC while processing target: %v", r)
			result = emptyResult(fmt.Errorf("%w: panic: %v", utils.ErrTargetParse, r))
		}
	}()

	targetLog.Infof("Loading %s results page...", target.Name)
	if err := session.Navigate(ctx, target.URL); err != nil {
		return p.fail(targetLog, wrapAs(err, utils.ErrTargetFetch))
	}
	if !session.WaitForReady(ctx, p.readyTimeout) {
		return p.fail(targetLog, fmt.Errorf("%w: %w after %v", utils.ErrTargetFetch, utils.ErrReadyTimeout, p.readyTimeout))
	}

	snap, err := p.snapshot(ctx, session, targetLog)
	if err != nil {
		return p.fail(targetLog, wrapAs(err, utils.ErrTargetParse))
	}
	result = Extract(target, snap)

	targetLog.Infof("Found %d email(s), %d phone(s)", len(result.Emails), len(result.Phones))
	return result
}

// snapshot reads the loaded page's visible text and candidate entity labels.
// Unreadable labels degrade to none rather than failing the target.
func (p *TargetProcessor) snapshot(ctx context.Context, session render.Session, targetLog *logrus.Entry) (models.PageSnapshot, error) {
	text, err := session.BodyText(ctx)
	if err != nil {
		return models.PageSnapshot{}, err
	}
	labels, err := p.entityLabels(ctx, session)
	if err != nil {
		targetLog.Warnf("Entity labels unavailable, using placeholder: %v", err)
		labels = nil
	}
	return models.PageSnapshot{RawText: text, CandidateEntityLabels: labels}, nil
}

// Extract builds the target's result from a page snapshot: one record per
// distinct email in sorted order, all sharing the page-level entity string.
func Extract(target models.Target, snap models.PageSnapshot) models.TargetResult {
	emails := extract.ExtractEmails(snap.RawText)
	phones := extract.ExtractPhones(snap.RawText)
	associations := extract.Associate(snap.CandidateEntityLabels, emails)

	records := make([]models.ContactRecord, 0, len(emails))
	for _, email := range extract.SortedKeys(emails) {
		records = append(records, models.ContactRecord{
			Target:             target,
			Email:              email,
			AssociatedEntities: associations[email],
			SourceURL:          target.URL,
		})
	}
	return models.TargetResult{Records: records, Emails: emails, Phones: phones}
}

// entityLabels returns the texts of entity links in page order. Unreadable links are skipped.
func (p *TargetProcessor) entityLabels(ctx context.Context, session render.Session) ([]string, error) {
	elems, err := session.FindElements(ctx, linkSelector)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0)
	for _, res := range render.ReadLinks(ctx, elems, p.IsEntityLink) {
		if res.Err != nil {
			p.log.Debugf("Skipping unreadable entity link: %v", res.Err)
			continue
		}
		labels = append(labels, res.Data.Text)
	}
	return labels, nil
}

// wrapAs makes err match sentinel without repeating it in the message
func wrapAs(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func (p *TargetProcessor) fail(targetLog *logrus.Entry, err error) models.TargetResult {
	targetLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Error scraping target: %v", err)
	return emptyResult(err)
}
