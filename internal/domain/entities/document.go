package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Document keys
const (
	KeyMealProposals       = "meal_proposals"
	KeyActivityProposals   = "activity_proposals"
	KeyAlcoholRequests     = "alcohol_requests"
	KeyPackingProgress     = "packing_progress"
	KeyNotes               = "notes"
	KeyCustomActivities    = "custom_activities"
	KeyCompletedActivities = "completed_activities"
	KeyNotifications       = "notifications"
	KeyTSAUpdates          = "tsa_updates"
	KeyLastUpdated         = "last_updated"

	BookingKeyPrefix = "booking_"
)

var knownKeys = map[string]bool{
	KeyMealProposals:       true,
	KeyActivityProposals:   true,
	KeyAlcoholRequests:     true,
	KeyPackingProgress:     true,
	KeyNotes:               true,
	KeyCustomActivities:    true,
	KeyCompletedActivities: true,
	KeyNotifications:       true,
	KeyTSAUpdates:          true,
	KeyLastUpdated:         true,
}

// Document is the whole trip state persisted as a single JSON object.
// Keys the store does not know about (booking_<id> and anything added later)
// are kept verbatim in Extra.
type Document struct {
	MealProposals       map[string]any `json:"meal_proposals"`
	ActivityProposals   map[string]any `json:"activity_proposals"`
	AlcoholRequests     []any          `json:"alcohol_requests"`
	PackingProgress     map[string]any `json:"packing_progress"`
	Notes               []any          `json:"notes"`
	CustomActivities    []any          `json:"custom_activities"`
	CompletedActivities []any          `json:"completed_activities"`
	Notifications       []any          `json:"notifications"`
	TSAUpdates          []any          `json:"tsa_updates"`
	LastUpdated         string         `json:"last_updated"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NewDocument returns the empty document template.
func NewDocument() *Document {
	return &Document{
		MealProposals:       map[string]any{},
		ActivityProposals:   map[string]any{},
		AlcoholRequests:     []any{},
		PackingProgress:     map[string]any{},
		Notes:               []any{},
		CustomActivities:    []any{},
		CompletedActivities: []any{},
		Notifications:       []any{},
		TSAUpdates:          []any{},
	}
}

// DecodeDocument parses raw file or request content.
// Anything that is not a JSON object is reported as ErrDocumentCorrupted.
func DecodeDocument(data []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentCorrupted, err)
	}
	return doc, nil
}

// UnmarshalJSON implements json.Unmarshaler. A known key whose value has an
// unexpected shape is kept verbatim in Extra instead of failing the decode.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("document must be a JSON object")
	}

	*d = Document{}
	for key, value := range raw {
		if knownKeys[key] && d.decodeKnown(key, value) {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]json.RawMessage)
		}
		d.Extra[key] = value
	}

	return nil
}

func (d *Document) decodeKnown(key string, value json.RawMessage) bool {
	switch key {
	case KeyMealProposals:
		return decodeInto(value, &d.MealProposals)
	case KeyActivityProposals:
		return decodeInto(value, &d.ActivityProposals)
	case KeyAlcoholRequests:
		return decodeInto(value, &d.AlcoholRequests)
	case KeyPackingProgress:
		return decodeInto(value, &d.PackingProgress)
	case KeyNotes:
		return decodeInto(value, &d.Notes)
	case KeyCustomActivities:
		return decodeInto(value, &d.CustomActivities)
	case KeyCompletedActivities:
		return decodeInto(value, &d.CompletedActivities)
	case KeyNotifications:
		return decodeInto(value, &d.Notifications)
	case KeyTSAUpdates:
		return decodeInto(value, &d.TSAUpdates)
	case KeyLastUpdated:
		return decodeInto(value, &d.LastUpdated)
	}
	return false
}

func decodeInto[T any](value json.RawMessage, dst *T) bool {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// MarshalJSON implements json.Marshaler. Missing collections are written as
// empty ones so the file always carries every required key. A known key held
// in Extra is written back as it was read until the field is given content.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownKeys)+len(d.Extra))
	for key, value := range d.Extra {
		out[key] = value
	}

	putMap(out, KeyMealProposals, d.MealProposals)
	putMap(out, KeyActivityProposals, d.ActivityProposals)
	putSlice(out, KeyAlcoholRequests, d.AlcoholRequests)
	putMap(out, KeyPackingProgress, d.PackingProgress)
	putSlice(out, KeyNotes, d.Notes)
	putSlice(out, KeyCustomActivities, d.CustomActivities)
	putSlice(out, KeyCompletedActivities, d.CompletedActivities)
	putSlice(out, KeyNotifications, d.Notifications)
	putSlice(out, KeyTSAUpdates, d.TSAUpdates)
	if _, kept := out[KeyLastUpdated]; !kept || d.LastUpdated != "" {
		out[KeyLastUpdated] = d.LastUpdated
	}

	return json.Marshal(out)
}

// Encode renders the on-disk representation: 2-space indent, trailing newline.
func (d *Document) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// Backfill fills every missing required key from the empty template and
// returns the keys it had to add.
func (d *Document) Backfill() []string {
	var added []string

	if d.MealProposals == nil {
		d.MealProposals = map[string]any{}
		added = append(added, KeyMealProposals)
	}
	if d.ActivityProposals == nil {
		d.ActivityProposals = map[string]any{}
		added = append(added, KeyActivityProposals)
	}
	if d.AlcoholRequests == nil {
		d.AlcoholRequests = []any{}
		added = append(added, KeyAlcoholRequests)
	}
	if d.PackingProgress == nil {
		d.PackingProgress = map[string]any{}
		added = append(added, KeyPackingProgress)
	}
	if d.Notes == nil {
		d.Notes = []any{}
		added = append(added, KeyNotes)
	}
	if d.CustomActivities == nil {
		d.CustomActivities = []any{}
		added = append(added, KeyCustomActivities)
	}
	if d.CompletedActivities == nil {
		d.CompletedActivities = []any{}
		added = append(added, KeyCompletedActivities)
	}
	if d.Notifications == nil {
		d.Notifications = []any{}
		added = append(added, KeyNotifications)
	}
	if d.TSAUpdates == nil {
		d.TSAUpdates = []any{}
		added = append(added, KeyTSAUpdates)
	}

	// a key held verbatim in Extra is present, just not in the usual shape
	missing := added[:0]
	for _, key := range added {
		if _, kept := d.Extra[key]; !kept {
			missing = append(missing, key)
		}
	}
	return missing
}

// Touch stamps the document with the save time.
func (d *Document) Touch(now time.Time) {
	d.LastUpdated = now.UTC().Format(time.RFC3339Nano)
}

// LastUpdatedTime parses last_updated. Timestamps written without a zone
// (older files) are read as UTC.
func (d *Document) LastUpdatedTime() (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, d.LastUpdated); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid last_updated %q", d.LastUpdated)
}

// Clone returns a deep copy.
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	return DecodeDocument(data)
}

// Booking returns the booking status stored under booking_<id>.
func (d *Document) Booking(id string) (map[string]any, bool) {
	raw, ok := d.Extra[BookingKeyPrefix+id]
	if !ok {
		return nil, false
	}

	var booking map[string]any
	if err := json.Unmarshal(raw, &booking); err != nil || booking == nil {
		return nil, false
	}
	return booking, true
}

// SetBooking stores the booking status for an activity.
func (d *Document) SetBooking(id string, booking map[string]any) error {
	if id == "" {
		return fmt.Errorf("booking id is required")
	}

	raw, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("marshal booking %s: %w", id, err)
	}
	if d.Extra == nil {
		d.Extra = make(map[string]json.RawMessage)
	}
	d.Extra[BookingKeyPrefix+id] = raw
	return nil
}

// BookingIDs lists the activity ids that have a booking entry, sorted.
func (d *Document) BookingIDs() []string {
	ids := make([]string, 0)
	for key := range d.Extra {
		if strings.HasPrefix(key, BookingKeyPrefix) && len(key) > len(BookingKeyPrefix) {
			ids = append(ids, strings.TrimPrefix(key, BookingKeyPrefix))
		}
	}
	sort.Strings(ids)
	return ids
}

func putMap(out map[string]any, key string, m map[string]any) {
	if _, kept := out[key]; kept && len(m) == 0 {
		return
	}
	out[key] = mapOrEmpty(m)
}

func putSlice(out map[string]any, key string, s []any) {
	if _, kept := out[key]; kept && len(s) == 0 {
		return
	}
	out[key] = sliceOrEmpty(s)
}

func mapOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func sliceOrEmpty(s []any) []any {
	if s == nil {
		return []any{}
	}
	return s
}
