// Package hubspot implements the CRM v3 client used by the scan
// orchestrator: paginated deal fetches, pipeline reference data, and
// credential validation.
package hubspot

import (
	"encoding/json"
	"strconv"
	"time"
)

// DefaultDealProperties is the property set requested when a scan config
// names none.
var DefaultDealProperties = []string{
	"dealname",
	"amount",
	"dealstage",
	"pipeline",
	"closedate",
	"createdate",
	"hs_lastmodifieddate",
}

// Credentials carries the per-scan bearer credential. The token is opaque to
// the core and only forwarded upstream.
type Credentials struct {
	Tenant      string
	AccessToken string
}

// Association links a deal to a related CRM object
type Association struct {
	AssociatedID string `json:"associated_id"`
	Type         string `json:"type"`
	Category     string `json:"category,omitempty"`
}

// DealRecord is one extracted deal: typed standard fields, an open map for
// anything unrecognized, and the complete raw payload for audit/replay.
type DealRecord struct {
	ExternalID   string            `json:"external_id"`
	Name         string            `json:"name,omitempty"`
	Amount       *float64          `json:"amount,omitempty"`
	Stage        string            `json:"stage,omitempty"`
	Pipeline     string            `json:"pipeline,omitempty"`
	CloseDate    *time.Time        `json:"close_date,omitempty"`
	CreateDate   *time.Time        `json:"create_date,omitempty"`
	LastModified *time.Time        `json:"last_modified,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	Raw          json.RawMessage   `json:"raw"`
	Associations []Association     `json:"associations,omitempty"`
}

// RecordError describes one malformed record within an otherwise good page
type RecordError struct {
	ItemID  string
	Message string
}

// DealsPage is the decoded result of one pagination call
type DealsPage struct {
	Deals        []DealRecord
	DecodeErrors []RecordError
	NextCursor   string // opaque, round-tripped verbatim
	HasMore      bool
}

// PipelineStage describes one stage of a deal pipeline
type PipelineStage struct {
	ID             string  `json:"id"`
	Label          string  `json:"label"`
	DisplayOrder   int     `json:"display_order"`
	WinProbability float64 `json:"win_probability"`
	Closed         bool    `json:"closed"`
}

// Pipeline is deal pipeline reference data, refreshed wholesale per scan
type Pipeline struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	DisplayOrder int             `json:"display_order"`
	Stages       []PipelineStage `json:"stages"`
}

// AccountInfo describes the HubSpot portal behind a token
type AccountInfo struct {
	PortalID  int64  `json:"portalId"`
	HubDomain string `json:"hubDomain"`
	UIDomain  string `json:"uiDomain"`
	TimeZone  string `json:"timeZone"`
	Currency  string `json:"currency"`
}

// Wire shapes for the CRM v3 API. Individual results are kept raw so one
// malformed record never poisons the page.

type listResponse struct {
	Results []json.RawMessage `json:"results"`
	Paging  *paging           `json:"paging"`
}

type paging struct {
	Next *pagingNext `json:"next"`
}

type pagingNext struct {
	After string `json:"after"`
}

type wireDeal struct {
	ID           string                         `json:"id"`
	Properties   map[string]*string             `json:"properties"`
	Associations map[string]wireAssociationList `json:"associations"`
}

type wireAssociationList struct {
	Results []wireAssociation `json:"results"`
}

type wireAssociation struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type wirePipeline struct {
	ID           string              `json:"id"`
	Label        string              `json:"label"`
	DisplayOrder int                 `json:"displayOrder"`
	Stages       []wirePipelineStage `json:"stages"`
}

type wirePipelineStage struct {
	ID           string                `json:"id"`
	Label        string                `json:"label"`
	DisplayOrder int                   `json:"displayOrder"`
	Metadata     wirePipelineStageMeta `json:"metadata"`
}

type wirePipelineStageMeta struct {
	Probability string `json:"probability"`
	IsClosed    string `json:"isClosed"`
}

type wireProperty struct {
	Name string `json:"name"`
}

// decodeDeal converts one raw result into a DealRecord. Standard properties
// land in typed fields; everything else is preserved verbatim in Extra.
func decodeDeal(raw json.RawMessage) (DealRecord, error) {
	var wd wireDeal
	if err := json.Unmarshal(raw, &wd); err != nil {
		return DealRecord{}, err
	}

	rec := DealRecord{
		ExternalID: wd.ID,
		Extra:      make(map[string]string),
		Raw:        append(json.RawMessage(nil), raw...),
	}

	for name, value := range wd.Properties {
		if value == nil {
			continue
		}
		switch name {
		case "dealname":
			rec.Name = *value
		case "amount":
			if f, err := strconv.ParseFloat(*value, 64); err == nil {
				rec.Amount = &f
			} else {
				rec.Extra[name] = *value
			}
		case "dealstage":
			rec.Stage = *value
		case "pipeline":
			rec.Pipeline = *value
		case "closedate":
			rec.CloseDate = parseHubSpotTime(*value)
		case "createdate":
			rec.CreateDate = parseHubSpotTime(*value)
		case "hs_lastmodifieddate":
			rec.LastModified = parseHubSpotTime(*value)
		default:
			rec.Extra[name] = *value
		}
	}

	for relType, list := range wd.Associations {
		for _, a := range list.Results {
			rec.Associations = append(rec.Associations, Association{
				AssociatedID: a.ID,
				Type:         a.Type,
				Category:     relType,
			})
		}
	}

	return rec, nil
}

// parseHubSpotTime accepts the formats HubSpot emits for datetime
// properties: RFC 3339 or epoch milliseconds. Unparseable values yield nil
// rather than an error; the raw payload keeps the original.
func parseHubSpotTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}
