// Package jsonapi implements the HTTP/JSON:API source (spec §6): one
// reference instantiation of the Source interface that speaks the
// JSON:API wire format over net/http, with cenkalti/backoff-driven retry
// grounded on the teacher's http/client.go Execute/calculateBackoff
// retry loop.
package jsonapi

import "encoding/json"

// MediaType is the JSON:API content type every request/response uses.
const MediaType = "application/vnd.api+json"

// ResourceIdentifier is the {type, id} pair JSON:API uses to reference a
// resource inside relationship data.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RelationshipData holds either a single identifier (hasOne) or a list
// of identifiers (hasMany); exactly one of the two is populated when
// marshaling, mirroring JSON:API's single-object-vs-array convention for
// relationship "data".
type RelationshipData struct {
	one    *ResourceIdentifier
	many   []ResourceIdentifier
	isNull bool
}

// NewHasOneData builds relationship data for a hasOne slot; pass nil for
// a cleared slot.
func NewHasOneData(id *ResourceIdentifier) RelationshipData {
	if id == nil {
		return RelationshipData{isNull: true}
	}
	return RelationshipData{one: id}
}

// NewHasManyData builds relationship data for a hasMany slot.
func NewHasManyData(ids []ResourceIdentifier) RelationshipData {
	return RelationshipData{many: ids}
}

func (d RelationshipData) MarshalJSON() ([]byte, error) {
	if d.many != nil {
		return json.Marshal(d.many)
	}
	if d.isNull {
		return []byte("null"), nil
	}
	return json.Marshal(d.one)
}

func (d *RelationshipData) UnmarshalJSON(raw []byte) error {
	if string(raw) == "null" {
		*d = RelationshipData{isNull: true}
		return nil
	}
	if len(raw) > 0 && raw[0] == '[' {
		var many []ResourceIdentifier
		if err := json.Unmarshal(raw, &many); err != nil {
			return err
		}
		*d = RelationshipData{many: many}
		return nil
	}
	var one ResourceIdentifier
	if err := json.Unmarshal(raw, &one); err != nil {
		return err
	}
	*d = RelationshipData{one: &one}
	return nil
}

// Relationship wraps a single relationship's "data" member.
type Relationship struct {
	Data RelationshipData `json:"data"`
}

// Resource is the JSON:API "resource object" shape carried in a
// document's top-level "data" member.
type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id,omitempty"`
	Attributes    map[string]interface{}  `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Document is a JSON:API request/response document whose primary data is
// a single resource, per §6's operation-to-request mapping (none of the
// ops this source handles produce a to-many "data" array as primary
// data).
type Document struct {
	Data *Resource `json:"data,omitempty"`
}

// ErrorObject is one entry in a JSON:API error response's "errors" array.
type ErrorObject struct {
	Status string `json:"status,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// ErrorDocument is the top-level shape of a JSON:API error response.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}
