package dealcloud

import (
	"encoding/json"
	"fmt"
)

// Reference is a DealCloud entry reference (id plus display name).
type Reference struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ReferenceList tolerates the API returning either a single reference object
// or an array of them, depending on wrapIntoArrays and field cardinality.
type ReferenceList []Reference

func (r *ReferenceList) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*r = nil
		return nil
	}
	if data[0] == '[' {
		var refs []Reference
		if err := json.Unmarshal(data, &refs); err != nil {
			return err
		}
		*r = refs
		return nil
	}
	var ref Reference
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}
	*r = ReferenceList{ref}
	return nil
}

// First returns the first reference and whether one exists.
func (r ReferenceList) First() (Reference, bool) {
	if len(r) == 0 {
		return Reference{}, false
	}
	return r[0], true
}

// DisplayName tolerates FullName arriving as either a plain string or a
// {"name": ...} object.
type DisplayName string

func (d *DisplayName) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*d = ""
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*d = DisplayName(obj.Name)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = DisplayName(s)
	return nil
}

// Contact is a CRM contact row. Email is the unique business key.
type Contact struct {
	EntryID   int           `json:"EntryId"`
	Email     string        `json:"Email"`
	FirstName string        `json:"FirstName"`
	LastName  string        `json:"LastName"`
	FullName  DisplayName   `json:"FullName"`
	Company   ReferenceList `json:"Company"`
}

// Deal is a CRM deal row. Deals are read-only from this service.
type Deal struct {
	EntryID  int           `json:"EntryId"`
	DealName string        `json:"DealName"`
	Company  ReferenceList `json:"Company"`
}

// Interaction is a CRM record representing one logged call, keyed by Subject
// for de-duplication.
type Interaction struct {
	EntryID   int           `json:"EntryId"`
	Subject   string        `json:"Subject"`
	Notes     string        `json:"Notes"`
	Contacts  ReferenceList `json:"Contacts"`
	Companies ReferenceList `json:"Companies"`
	Deals     ReferenceList `json:"Deals"`
}

// FieldError is a per-field rejection reported in an otherwise successful
// HTTP response.
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// writeResult is one entry of a create/update response body. An EntryId of -1
// or a non-empty Errors list marks the write as rejected even when the HTTP
// status reports success.
type writeResult struct {
	EntryID int          `json:"EntryId"`
	Errors  []FieldError `json:"Errors"`
}

// ConnectionStatus is the result of a connectivity probe.
type ConnectionStatus struct {
	Status  string `json:"status"`
	BaseURL string `json:"base_url,omitempty"`
	Error   string `json:"error,omitempty"`
}
