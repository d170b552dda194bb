package syncer

import (
	"context"
	"fmt"
	"strings"

	"fireflies-dealcloud-sync/internal/common/logger"
	"fireflies-dealcloud-sync/internal/common/metrics"
	"fireflies-dealcloud-sync/internal/dealcloud"
	"fireflies-dealcloud-sync/internal/fireflies"
)

// CRM is the DealCloud surface the engine depends on.
type CRM interface {
	ClearCache()
	SearchContactsByEmail(ctx context.Context, emails []string) ([]dealcloud.Contact, error)
	CreateContact(ctx context.Context, email string, companyID int) (*dealcloud.Contact, error)
	SearchDealsByName(ctx context.Context, name string) ([]dealcloud.Deal, error)
	SearchDealsByCompany(ctx context.Context, companyID int) ([]dealcloud.Deal, error)
	SearchInteractionBySubject(ctx context.Context, subject string) (*dealcloud.Interaction, error)
	CreateInteraction(ctx context.Context, subject, notes string, contactIDs []int, companyID int, dealIDs []int) (*dealcloud.Interaction, error)
	UpdateInteraction(ctx context.Context, entryID int, notes string, contactIDs []int, companyID int, dealIDs []int) (*dealcloud.Interaction, error)
}

// Engine runs the per-transcript reconciliation pipeline. One pass per
// transcript, terminal outcomes created/updated/skipped/error; nothing raises
// past the transcript boundary.
type Engine struct {
	crm             CRM
	titleParser     *TitleParser
	internalDomains map[string]struct{}
	logger          logger.Logger
}

func NewEngine(crm CRM, internalDomains, projectStopWords []string, log logger.Logger) *Engine {
	domains := make(map[string]struct{}, len(internalDomains))
	for _, d := range internalDomains {
		domains[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Engine{
		crm:             crm,
		titleParser:     NewTitleParser(projectStopWords),
		internalDomains: domains,
		logger:          log,
	}
}

func (e *Engine) isInternalEmail(email string) bool {
	at := strings.Index(email, "@")
	if at < 0 {
		return false
	}
	_, internal := e.internalDomains[strings.ToLower(email[at+1:])]
	return internal
}

// ProcessTranscript runs the pipeline for one transcript. Panics and
// unexpected errors are converted to an error result so a single transcript
// can never abort the batch.
func (e *Engine) ProcessTranscript(ctx context.Context, t *fireflies.Transcript) (result SyncResult) {
	result = SyncResult{
		TranscriptID:    t.ID,
		TranscriptTitle: t.Title,
		ContactIDs:      []int{},
		DealIDs:         []int{},
		FoundContacts:   []ContactRef{},
		CreatedContacts: []ContactRef{},
		FoundDeals:      []DealRef{},
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic while processing transcript", map[string]interface{}{
				"transcriptId": t.ID,
				"panic":        fmt.Sprintf("%v", r),
			})
			result.Status = StatusError
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		metrics.TranscriptsProcessed.WithLabelValues(string(result.Status)).Inc()
	}()

	e.logger.Info("Processing transcript", map[string]interface{}{
		"transcriptId": t.ID,
		"title":        t.Title,
	})

	// Participant split: email-shaped strings only, external vs internal by
	// domain.
	var allEmails, externalEmails []string
	for _, p := range t.Participants {
		if p == "" || !strings.Contains(p, "@") {
			continue
		}
		allEmails = append(allEmails, p)
		if !e.isInternalEmail(p) {
			externalEmails = append(externalEmails, p)
		}
	}

	e.logger.Info("Participant split", map[string]interface{}{
		"total":    len(allEmails),
		"external": len(externalEmails),
		"internal": len(allEmails) - len(externalEmails),
	})

	if len(externalEmails) == 0 {
		e.logger.Warn("Skipping transcript, no external participants", map[string]interface{}{
			"transcriptId": t.ID,
		})
		result.Status = StatusSkipped
		result.Reason = "No external participants"
		return result
	}

	uniqueEmails := dedupe(externalEmails)

	// Contact resolution. Company comes from the first matched contact that
	// has one; later contacts never override it.
	companyID := 0
	foundEmails := make(map[string]struct{})

	contacts, err := e.crm.SearchContactsByEmail(ctx, uniqueEmails)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}

	for _, contact := range contacts {
		if contact.EntryID == 0 || containsInt(result.ContactIDs, contact.EntryID) {
			continue
		}
		foundEmails[strings.ToLower(contact.Email)] = struct{}{}
		result.ContactIDs = append(result.ContactIDs, contact.EntryID)
		name := string(contact.FullName)
		if name == "" {
			name = "Unknown"
		}
		result.FoundContacts = append(result.FoundContacts, ContactRef{
			Email: contact.Email,
			Name:  name,
			ID:    contact.EntryID,
		})

		if companyID == 0 {
			if company, ok := contact.Company.First(); ok {
				companyID = company.ID
				e.logger.Info("Company resolved from contact", map[string]interface{}{
					"companyId":   company.ID,
					"companyName": company.Name,
				})
			}
		}
	}

	// Contact creation for unmatched externals, only when a company is known.
	// Per-email failures log and continue.
	var missingEmails []string
	for _, email := range uniqueEmails {
		if _, found := foundEmails[strings.ToLower(email)]; !found {
			missingEmails = append(missingEmails, email)
		}
	}

	if len(missingEmails) > 0 {
		if companyID != 0 {
			for _, email := range missingEmails {
				created, createErr := e.crm.CreateContact(ctx, email, companyID)
				if createErr != nil {
					e.logger.Warn("Failed to create contact", map[string]interface{}{
						"email": email,
						"error": createErr.Error(),
					})
					continue
				}
				result.ContactIDs = append(result.ContactIDs, created.EntryID)
				result.CreatedContacts = append(result.CreatedContacts, ContactRef{
					Email: email,
					Name:  strings.TrimSpace(created.FirstName + " " + created.LastName),
					ID:    created.EntryID,
				})
			}
		} else {
			e.logger.Warn("Cannot create contacts, no company resolved", map[string]interface{}{
				"count": len(missingEmails),
			})
		}
	}

	// Deal resolution. Name match takes priority; the company fallback only
	// runs when the name search yielded nothing. Results are never merged.
	targetCompanyID := 0
	projectName := e.titleParser.ExtractProjectName(t.Title)
	if projectName != "" {
		e.logger.Info("Extracted project name from title", map[string]interface{}{
			"projectName": projectName,
		})
		deals, dealErr := e.crm.SearchDealsByName(ctx, projectName)
		if dealErr != nil {
			result.Status = StatusError
			result.Error = dealErr.Error()
			return result
		}
		for _, deal := range deals {
			if deal.EntryID == 0 || containsInt(result.DealIDs, deal.EntryID) {
				continue
			}
			result.DealIDs = append(result.DealIDs, deal.EntryID)
			result.FoundDeals = append(result.FoundDeals, DealRef{Name: deal.DealName, ID: deal.EntryID})

			// The deal's own company is the actual counterparty; the
			// contact-derived company may be an intermediary.
			if targetCompanyID == 0 {
				if company, ok := deal.Company.First(); ok {
					targetCompanyID = company.ID
					e.logger.Info("Target company resolved from deal", map[string]interface{}{
						"companyId":   company.ID,
						"companyName": company.Name,
					})
				}
			}
		}
	} else {
		e.logger.Warn("Could not extract project name from title", map[string]interface{}{
			"title": t.Title,
		})
	}

	if len(result.DealIDs) == 0 && companyID != 0 {
		deals, dealErr := e.crm.SearchDealsByCompany(ctx, companyID)
		if dealErr != nil {
			result.Status = StatusError
			result.Error = dealErr.Error()
			return result
		}
		for _, deal := range deals {
			if deal.EntryID == 0 || containsInt(result.DealIDs, deal.EntryID) {
				continue
			}
			result.DealIDs = append(result.DealIDs, deal.EntryID)
			result.FoundDeals = append(result.FoundDeals, DealRef{Name: deal.DealName, ID: deal.EntryID})
		}
	}

	// Deal target company wins over the contact company.
	finalCompanyID := companyID
	if targetCompanyID != 0 {
		finalCompanyID = targetCompanyID
	}
	result.CompanyID = finalCompanyID

	if finalCompanyID == 0 && len(result.ContactIDs) == 0 && len(result.DealIDs) == 0 {
		e.logger.Warn("Skipping transcript, nothing to link", map[string]interface{}{
			"transcriptId": t.ID,
		})
		result.Status = StatusSkipped
		result.Reason = "No company, contacts, or deals found to link interaction"
		return result
	}

	content := FormatContent(t.Summary)
	notes := BuildNotes(t)
	subject := "Call: " + t.Title

	existing, err := e.crm.SearchInteractionBySubject(ctx, subject)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}

	if existing != nil {
		result.InteractionID = existing.EntryID
		notesIncomplete := HasIncompleteNotes(existing.Notes)

		if notesIncomplete && content != "" {
			e.logger.Warn("Existing interaction has incomplete notes, backfilling", map[string]interface{}{
				"entryId": existing.EntryID,
			})
			if _, updateErr := e.crm.UpdateInteraction(ctx, existing.EntryID, notes,
				result.ContactIDs, finalCompanyID, result.DealIDs); updateErr != nil {
				e.logger.Error("Failed to update interaction", map[string]interface{}{
					"entryId": existing.EntryID,
					"error":   updateErr.Error(),
				})
				result.Status = StatusError
				result.Error = "Failed to update interaction with backfilled notes"
				return result
			}
			result.Status = StatusUpdated
			result.Reason = "Notes backfilled (Fireflies summary now available)"
			return result
		}

		result.Status = StatusSkipped
		if notesIncomplete {
			result.Reason = "Interaction exists, Fireflies summary still pending"
		} else {
			result.Reason = "Interaction already exists"
		}
		return result
	}

	created, err := e.crm.CreateInteraction(ctx, subject, notes, result.ContactIDs, finalCompanyID, result.DealIDs)
	if err != nil {
		e.logger.Error("Failed to create interaction", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
		result.Status = StatusError
		result.Error = "Failed to create interaction"
		return result
	}

	result.InteractionID = created.EntryID
	result.Status = StatusCreated
	e.logger.Info("Interaction created", map[string]interface{}{
		"entryId":   created.EntryID,
		"companyId": finalCompanyID,
		"contacts":  len(result.ContactIDs),
		"deals":     len(result.DealIDs),
	})
	return result
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsInt(values []int, target int) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
