package ats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-schedsync/core"
)

// applicationEnvelope accepts both remote shapes: a flat record with
// top-level name/email/requisition fields, or a nested record carrying
// candidate and requisition objects.
type applicationEnvelope struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	RequisitionID    string `json:"requisitionId"`
	RequisitionTitle string `json:"requisitionTitle"`

	Candidate *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"candidate"`
	Requisition *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"requisition"`
}

func normalizeApplication(id string, body []byte) (core.Application, error) {
	var envelope applicationEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.Application{}, fmt.Errorf("ats: decode application %s: %w", id, err)
	}

	app := core.Application{
		ID:               strings.TrimSpace(envelope.ID),
		CandidateName:    strings.TrimSpace(envelope.Name),
		CandidateEmail:   strings.TrimSpace(envelope.Email),
		RequisitionID:    strings.TrimSpace(envelope.RequisitionID),
		RequisitionTitle: strings.TrimSpace(envelope.RequisitionTitle),
	}
	if envelope.Candidate != nil {
		if name := strings.TrimSpace(envelope.Candidate.Name); name != "" {
			app.CandidateName = name
		}
		if email := strings.TrimSpace(envelope.Candidate.Email); email != "" {
			app.CandidateEmail = email
		}
	}
	if envelope.Requisition != nil {
		if reqID := strings.TrimSpace(envelope.Requisition.ID); reqID != "" {
			app.RequisitionID = reqID
		}
		if title := strings.TrimSpace(envelope.Requisition.Title); title != "" {
			app.RequisitionTitle = title
		}
	}

	if app.ID == "" {
		app.ID = id
	}
	if app.CandidateName == "" && app.CandidateEmail == "" && app.RequisitionID == "" {
		return core.Application{}, fmt.Errorf("ats: unrecognized application shape for %s", id)
	}
	return app, nil
}
