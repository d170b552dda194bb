package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fireflies-dealcloud-sync/internal/common/logger"
	"fireflies-dealcloud-sync/internal/dealcloud"
	"fireflies-dealcloud-sync/internal/fireflies"
)

// fakeCRM records calls and serves programmable responses.
type fakeCRM struct {
	contacts       []dealcloud.Contact
	dealsByName    []dealcloud.Deal
	dealsByCompany []dealcloud.Deal
	interaction    *dealcloud.Interaction

	createContactErr     error
	createInteractionErr error
	updateInteractionErr error
	panicOnCreate        bool

	calls []string

	createdSubject  string
	createdNotes    string
	createdContacts []int
	createdCompany  int
	createdDeals    []int

	updatedEntryID  int
	updatedNotes    string
	updatedContacts []int
	updatedCompany  int
	updatedDeals    []int
}

func (f *fakeCRM) ClearCache() { f.calls = append(f.calls, "clear_cache") }

func (f *fakeCRM) SearchContactsByEmail(_ context.Context, emails []string) ([]dealcloud.Contact, error) {
	f.calls = append(f.calls, "search_contacts")
	return f.contacts, nil
}

func (f *fakeCRM) CreateContact(_ context.Context, email string, companyID int) (*dealcloud.Contact, error) {
	f.calls = append(f.calls, "create_contact:"+email)
	if f.createContactErr != nil {
		return nil, f.createContactErr
	}
	return &dealcloud.Contact{EntryID: 9000 + len(f.calls), Email: email, FirstName: "New", LastName: "Contact"}, nil
}

func (f *fakeCRM) SearchDealsByName(_ context.Context, name string) ([]dealcloud.Deal, error) {
	f.calls = append(f.calls, "search_deals_name:"+name)
	return f.dealsByName, nil
}

func (f *fakeCRM) SearchDealsByCompany(_ context.Context, companyID int) ([]dealcloud.Deal, error) {
	f.calls = append(f.calls, "search_deals_company")
	return f.dealsByCompany, nil
}

func (f *fakeCRM) SearchInteractionBySubject(_ context.Context, subject string) (*dealcloud.Interaction, error) {
	f.calls = append(f.calls, "search_interaction:"+subject)
	return f.interaction, nil
}

func (f *fakeCRM) CreateInteraction(_ context.Context, subject, notes string, contactIDs []int, companyID int, dealIDs []int) (*dealcloud.Interaction, error) {
	f.calls = append(f.calls, "create_interaction")
	if f.panicOnCreate {
		panic("boom")
	}
	if f.createInteractionErr != nil {
		return nil, f.createInteractionErr
	}
	f.createdSubject = subject
	f.createdNotes = notes
	f.createdContacts = contactIDs
	f.createdCompany = companyID
	f.createdDeals = dealIDs
	return &dealcloud.Interaction{EntryID: 5555, Subject: subject}, nil
}

func (f *fakeCRM) UpdateInteraction(_ context.Context, entryID int, notes string, contactIDs []int, companyID int, dealIDs []int) (*dealcloud.Interaction, error) {
	f.calls = append(f.calls, "update_interaction")
	if f.updateInteractionErr != nil {
		return nil, f.updateInteractionErr
	}
	f.updatedEntryID = entryID
	f.updatedNotes = notes
	f.updatedContacts = contactIDs
	f.updatedCompany = companyID
	f.updatedDeals = dealIDs
	return &dealcloud.Interaction{EntryID: entryID}, nil
}

var testInternalDomains = []string{"valescoind.com", "gmail.com"}

func newTestEngine(t *testing.T, crm CRM) *Engine {
	t.Helper()
	return NewEngine(crm, testInternalDomains, []string{"valesco", "team"}, logger.NewTestLogger(t))
}

func externalTranscript() *fireflies.Transcript {
	return &fireflies.Transcript{
		ID:           "tr-1",
		Title:        "Honey - Pro Forma EBITDA",
		Date:         1721900000000,
		Duration:     1800,
		Participants: []string{"me@valescoind.com", "jane@acme.com"},
		Summary:      &fireflies.Summary{Overview: "We met."},
	}
}

func TestProcessTranscriptNoExternalParticipantsSkipsWithoutCRMCalls(t *testing.T) {
	crm := &fakeCRM{}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), &fireflies.Transcript{
		ID:           "tr-internal",
		Title:        "Weekly Internal Sync",
		Participants: []string{"a@valescoind.com", "b@gmail.com", "Conference Room"},
	})

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "No external participants", result.Reason)
	assert.Empty(t, crm.calls)
}

func TestProcessTranscriptInternalSplitDependsOnConfig(t *testing.T) {
	transcript := &fireflies.Transcript{
		ID:           "tr-split",
		Title:        "quarterly numbers",
		Participants: []string{"a@gmail.com"},
	}

	// gmail.com configured internal: the only participant is internal.
	crm := &fakeCRM{}
	engine := newTestEngine(t, crm)
	result := engine.ProcessTranscript(context.Background(), transcript)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "No external participants", result.Reason)

	// gmail.com not configured: the same participant is external.
	crm = &fakeCRM{}
	engine = NewEngine(crm, []string{"valescoind.com"}, nil, logger.NewTestLogger(t))
	result = engine.ProcessTranscript(context.Background(), transcript)
	assert.Contains(t, crm.calls, "search_contacts")
	assert.NotEqual(t, "No external participants", result.Reason)
}

func TestProcessTranscriptCreatesInteraction(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID:  501,
			Email:    "jane@acme.com",
			FullName: "Jane Smith",
			Company:  dealcloud.ReferenceList{{ID: 900, Name: "Acme"}},
		}},
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	require.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, 5555, result.InteractionID)
	assert.Equal(t, []int{501}, result.ContactIDs)
	assert.Equal(t, 900, result.CompanyID)
	assert.Equal(t, "Call: Honey - Pro Forma EBITDA", crm.createdSubject)
	assert.Contains(t, crm.createdNotes, "SUMMARY:\nWe met.")
	assert.Contains(t, crm.createdNotes, "Participants:\nme@valescoind.com\njane@acme.com")
	require.Len(t, result.FoundContacts, 1)
	assert.Equal(t, "Jane Smith", result.FoundContacts[0].Name)
}

func TestProcessTranscriptCreatesMissingContacts(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501,
			Email:   "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900, Name: "Acme"}},
		}},
	}
	engine := newTestEngine(t, crm)

	transcript := externalTranscript()
	transcript.Participants = append(transcript.Participants, "bob@acme.com")
	result := engine.ProcessTranscript(context.Background(), transcript)

	require.Equal(t, StatusCreated, result.Status)
	assert.Contains(t, crm.calls, "create_contact:bob@acme.com")
	assert.Len(t, result.CreatedContacts, 1)
	assert.Len(t, result.ContactIDs, 2)
}

func TestProcessTranscriptSkipsContactCreationWithoutCompany(t *testing.T) {
	crm := &fakeCRM{
		dealsByName: []dealcloud.Deal{{EntryID: 77, DealName: "Honey Acquisition"}},
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	// No contact match means no company, so no creation attempt.
	for _, call := range crm.calls {
		assert.NotContains(t, call, "create_contact")
	}
	assert.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, []int{77}, result.DealIDs)
}

func TestProcessTranscriptContactCreationFailureContinues(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501,
			Email:   "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
		createContactErr: assert.AnError,
	}
	engine := newTestEngine(t, crm)

	transcript := externalTranscript()
	transcript.Participants = append(transcript.Participants, "bob@acme.com")
	result := engine.ProcessTranscript(context.Background(), transcript)

	require.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, []int{501}, result.ContactIDs)
	assert.Empty(t, result.CreatedContacts)
}

func TestProcessTranscriptDealCompanyWinsOverContactCompany(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501,
			Email:   "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900, Name: "Advisor LLC"}},
		}},
		dealsByName: []dealcloud.Deal{{
			EntryID:  77,
			DealName: "Honey Acquisition",
			Company:  dealcloud.ReferenceList{{ID: 1200, Name: "Honey Inc"}},
		}},
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	require.Equal(t, StatusCreated, result.Status)
	assert.Equal(t, 1200, result.CompanyID)
	assert.Equal(t, 1200, crm.createdCompany)
	// Name-matched deals suppress the by-company fallback.
	assert.NotContains(t, crm.calls, "search_deals_company")
}

func TestProcessTranscriptDealFallbackByCompany(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501,
			Email:   "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900, Name: "Acme"}},
		}},
		dealsByCompany: []dealcloud.Deal{{EntryID: 88, DealName: "Acme Recap"}},
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	require.Equal(t, StatusCreated, result.Status)
	assert.Contains(t, crm.calls, "search_deals_company")
	assert.Equal(t, []int{88}, result.DealIDs)
	// Fallback deals never override the contact company.
	assert.Equal(t, 900, result.CompanyID)
}

func TestProcessTranscriptNoTitleMatchSkipsNameSearch(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501,
			Email:   "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
	}
	engine := newTestEngine(t, crm)

	transcript := externalTranscript()
	transcript.Title = "quarterly numbers"
	result := engine.ProcessTranscript(context.Background(), transcript)

	require.Equal(t, StatusCreated, result.Status)
	for _, call := range crm.calls {
		assert.NotContains(t, call, "search_deals_name")
	}
}

func TestProcessTranscriptNothingToLinkSkips(t *testing.T) {
	crm := &fakeCRM{}
	engine := newTestEngine(t, crm)

	transcript := externalTranscript()
	transcript.Title = "quarterly numbers"
	result := engine.ProcessTranscript(context.Background(), transcript)

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "No company, contacts, or deals found to link interaction", result.Reason)
	assert.NotContains(t, crm.calls, "create_interaction")
}

func TestProcessTranscriptExistingCompleteSkips(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501, Email: "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
		interaction: &dealcloud.Interaction{
			EntryID: 42,
			Notes:   "header\n\nSUMMARY:\nalready synced",
		},
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "Interaction already exists", result.Reason)
	assert.Equal(t, 42, result.InteractionID)
	assert.NotContains(t, crm.calls, "create_interaction")
	assert.NotContains(t, crm.calls, "update_interaction")
}

func TestProcessTranscriptBackfillsIncompleteNotes(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501, Email: "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
		interaction: &dealcloud.Interaction{
			EntryID: 42,
			Notes:   "Fireflies Call Recording\n\nDate: 1721900000000",
		},
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	require.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, "Notes backfilled (Fireflies summary now available)", result.Reason)
	assert.Equal(t, 42, crm.updatedEntryID)
	assert.Contains(t, crm.updatedNotes, "SUMMARY:\nWe met.")
	assert.Equal(t, []int{501}, crm.updatedContacts)
	assert.Equal(t, 900, crm.updatedCompany)
}

func TestProcessTranscriptIncompleteButStillNoSummarySkips(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501, Email: "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
		interaction: &dealcloud.Interaction{EntryID: 42, Notes: ""},
	}
	engine := newTestEngine(t, crm)

	transcript := externalTranscript()
	transcript.Summary = nil
	result := engine.ProcessTranscript(context.Background(), transcript)

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "Interaction exists, Fireflies summary still pending", result.Reason)
	assert.NotContains(t, crm.calls, "update_interaction")
}

func TestProcessTranscriptCreateFailureIsError(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501, Email: "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
		createInteractionErr: assert.AnError,
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "Failed to create interaction", result.Error)
}

func TestProcessTranscriptUpdateFailureIsError(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501, Email: "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
		interaction:          &dealcloud.Interaction{EntryID: 42, Notes: ""},
		updateInteractionErr: assert.AnError,
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "Failed to update interaction with backfilled notes", result.Error)
}

func TestProcessTranscriptRecoversFromPanic(t *testing.T) {
	crm := &fakeCRM{
		contacts: []dealcloud.Contact{{
			EntryID: 501, Email: "jane@acme.com",
			Company: dealcloud.ReferenceList{{ID: 900}},
		}},
		panicOnCreate: true,
	}
	engine := newTestEngine(t, crm)

	result := engine.ProcessTranscript(context.Background(), externalTranscript())

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Error, "boom")
}
