// Package ehr is the client for the practice's EHR REST API. It handles
// patient chart lookup at session creation and the one-way push of completed
// intake sections. All calls run through a circuit breaker: the EHR is the
// least reliable dependency in the path and a conversation must never hang
// on it.
package ehr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/catalog"
	"github.com/poundofcure/go-intake/internal/intake"
	"github.com/poundofcure/go-intake/pkg/circuitbreaker"
)

var (
	// ErrPatientNotFound means the MRN resolved to no chart.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrPushFailed wraps section push failures so callers can treat all of
	// them as retryable.
	ErrPushFailed = errors.New("ehr push failed")
)

// Config holds EHR client configuration
type Config struct {
	BaseURL    string
	APIKey     string
	FacilityID string
	Timeout    time.Duration
}

// Patient is the subset of the upstream chart used for verification and
// demographics pre-population.
type Patient struct {
	PatientID     string `json:"patient_id"`
	RecordID      string `json:"record_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	DateOfBirth   string `json:"dob"`
	Gender        string `json:"gender"`
	Email         string `json:"email"`
	Mobile        string `json:"mobile"`
	HomePhone     string `json:"home_phone"`
	WorkPhone     string `json:"work_phone"`
	WorkPhoneExtn string `json:"work_phone_extn"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
}

// Fields flattens the chart into upstream field names for demographics
// pre-population.
func (p *Patient) Fields() map[string]string {
	return map[string]string{
		"first_name":      p.FirstName,
		"last_name":       p.LastName,
		"dob":             p.DateOfBirth,
		"gender":          p.Gender,
		"email":           p.Email,
		"mobile":          p.Mobile,
		"home_phone":      p.HomePhone,
		"work_phone":      p.WorkPhone,
		"work_phone_extn": p.WorkPhoneExtn,
		"address_line1":   p.AddressLine1,
		"address_line2":   p.AddressLine2,
		"city":            p.City,
		"state":           p.State,
		"postal_code":     p.PostalCode,
		"country":         p.Country,
	}
}

// Client talks to the EHR API
type Client struct {
	config  Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates an EHR client
func NewClient(cfg Config, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// LookupPatientByMRN resolves a medical record number to a chart. Returns
// ErrPatientNotFound for unknown or malformed MRNs.
func (c *Client) LookupPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	params := url.Values{}
	params.Set("record_id", mrn)
	params.Set("facility_id", "ALL")

	body, status, err := c.do(ctx, http.MethodGet, "/patients?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	if status == http.StatusNotFound || status == http.StatusBadRequest {
		return nil, ErrPatientNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("patient lookup: unexpected status %d", status)
	}

	var payload struct {
		Code     string    `json:"code"`
		Patients []Patient `json:"patients"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("patient lookup: decode response: %w", err)
	}
	if payload.Code != "0" || len(payload.Patients) == 0 {
		return nil, ErrPatientNotFound
	}
	return &payload.Patients[0], nil
}

// PushSection writes a completed section to the chart. Demographics updates
// the patient resource in place; clinical sections append observations. Any
// failure wraps ErrPushFailed.
func (c *Client) PushSection(ctx context.Context, patientID string, section catalog.Section, record intake.Record) error {
	var err error
	switch section {
	case catalog.SectionDemographics:
		err = c.pushDemographics(ctx, patientID, record)
	case catalog.SectionWeightHistory:
		err = c.pushVitals(ctx, patientID, record)
	case catalog.SectionMedicalHistory:
		err = c.pushMedicalHistory(ctx, patientID, record)
	default:
		return fmt.Errorf("%w: no push mapping for section %s", ErrPushFailed, section)
	}
	if err != nil {
		return fmt.Errorf("%w: section %s: %v", ErrPushFailed, section, err)
	}
	c.logger.Info("section pushed to ehr",
		zap.String("patient_id", patientID),
		zap.String("section", string(section)))
	return nil
}

// PushDiagnosis records a practice diagnosis on the chart after intake
// completes.
func (c *Client) PushDiagnosis(ctx context.Context, patientID string, diagnosis Diagnosis) error {
	_, status, err := c.do(ctx, http.MethodPost, "/patients/"+patientID+"/diagnoses", diagnosis)
	if err != nil {
		return fmt.Errorf("%w: diagnosis: %v", ErrPushFailed, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: diagnosis: unexpected status %d", ErrPushFailed, status)
	}
	return nil
}

func (c *Client) pushDemographics(ctx context.Context, patientID string, record intake.Record) error {
	payload := DemographicsPayload(record)
	_, status, err := c.do(ctx, http.MethodPut, "/patients/"+patientID, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

func (c *Client) pushVitals(ctx context.Context, patientID string, record intake.Record) error {
	payload := VitalsPayload(record)
	if payload == nil {
		return nil
	}
	_, status, err := c.do(ctx, http.MethodPost, "/patients/"+patientID+"/vitals", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

func (c *Client) pushMedicalHistory(ctx context.Context, patientID string, record intake.Record) error {
	// The upstream API takes one resource per medication and allergy.
	for _, med := range MedicationPayloads(record) {
		_, status, err := c.do(ctx, http.MethodPost, "/patients/"+patientID+"/medications", med)
		if err != nil {
			return err
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("medication: unexpected status %d", status)
		}
	}
	for _, allergy := range AllergyPayloads(record) {
		_, status, err := c.do(ctx, http.MethodPost, "/patients/"+patientID+"/allergies", allergy)
		if err != nil {
			return err
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("allergy: unexpected status %d", status)
		}
	}
	return nil
}

// do executes one HTTP round trip through the circuit breaker.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("X-Facility-Id", c.config.FacilityID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	type response struct {
		body   []byte
		status int
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		// 5xx counts against the breaker; 4xx is a caller problem, not an
		// EHR outage.
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("server error %d", resp.StatusCode)
		}
		return response{body: body, status: resp.StatusCode}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	resp := result.(response)
	return resp.body, resp.status, nil
}
