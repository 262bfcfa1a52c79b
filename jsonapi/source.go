package jsonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"dsync.evalgo.org/dsyncerr"
	"dsync.evalgo.org/dsynclog"
	"dsync.evalgo.org/model"
	"dsync.evalgo.org/op"
)

// Config controls one JSON:API Source (spec §6).
type Config struct {
	Host      string
	Namespace string
	// KeyName is the KeyMap key this source registers a server-assigned
	// id under when an addRecord response carries one, default "remoteId".
	KeyName string

	HTTPClient *http.Client
	// MaxRetries bounds transient-failure retries per request (§7);
	// 4xx responses are never retried.
	MaxRetries int
	// MaxRequestsPerTransform/MaxRequestsPerFetch cap fan-out: exceeding
	// either rejects with NotAllowed before dispatching any request
	// (§7).
	MaxRequestsPerTransform int
	MaxRequestsPerFetch     int
}

func (c Config) keyName() string {
	if c.KeyName == "" {
		return "remoteId"
	}
	return c.KeyName
}

// Source is the JSON:API reference Source: one instantiation of the
// core's Source interface that speaks JSON:API over HTTP (spec §6).
// Request retry follows the teacher's http/client.go Execute loop,
// rebuilt on cenkalti/backoff/v5's generic Retry instead of a hand
// rolled attempt counter.
type Source struct {
	cfg    Config
	urls   URLBuilder
	keys   *model.KeyMap
	client *http.Client
	log    *dsynclog.Logger
}

// New builds a JSON:API Source. keys may be nil if the caller doesn't
// need local-id/remote-key translation tracked. log may be nil.
func New(cfg Config, keys *model.KeyMap, log *dsynclog.Logger) *Source {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Source{
		cfg:    cfg,
		urls:   URLBuilder{Host: cfg.Host, Namespace: cfg.Namespace},
		keys:   keys,
		client: client,
		log:    log,
	}
}

// DoTransform implements source.Transformer: each operation in t is
// translated into the HTTP request the op-to-verb mapping in §6 names.
func (s *Source) DoTransform(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	return s.apply(ctx, t)
}

// DoUpdate implements source.Updater identically to DoTransform: an
// "update" forwarded to this source by a RequestStrategy dispatches the
// same set of HTTP requests a transform would.
func (s *Source) DoUpdate(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	return s.apply(ctx, t)
}

func (s *Source) apply(ctx context.Context, t op.Transform) ([]op.Transform, error) {
	if s.cfg.MaxRequestsPerTransform > 0 && len(t.Operations) > s.cfg.MaxRequestsPerTransform {
		return nil, dsyncerr.NotAllowed("transform %s has %d operations, exceeds maxRequestsPerTransform %d",
			t.ID, len(t.Operations), s.cfg.MaxRequestsPerTransform)
	}

	var resultOps []op.Operation
	for _, o := range t.Operations {
		enriched, err := s.dispatch(ctx, o)
		if err != nil {
			return nil, err
		}
		resultOps = append(resultOps, enriched...)
	}
	if len(resultOps) == 0 {
		return []op.Transform{t}, nil
	}
	return []op.Transform{op.New(resultOps...)}, nil
}

// Fetch is the query JSON:API's DoFetch understands: a single resource
// (ID set) or a whole collection (ID empty) under Type.
type Fetch struct {
	Type string
	ID   string
}

// DoFetch implements source.Fetcher: a single GET against the resource
// or collection URL.
func (s *Source) DoFetch(ctx context.Context, q interface{}) (interface{}, error) {
	// A single DoFetch call dispatches exactly one request (no pagination
	// fan-out in this reference source). A zero or negative cap means no
	// cap and any positive cap admits that one request, so this check
	// never rejects.
	if s.cfg.MaxRequestsPerFetch > 0 && s.cfg.MaxRequestsPerFetch < 1 {
		return nil, dsyncerr.NotAllowed("fetch would dispatch 1 request, exceeds maxRequestsPerFetch %d", s.cfg.MaxRequestsPerFetch)
	}
	fq, ok := q.(Fetch)
	if !ok {
		return nil, fmt.Errorf("jsonapi: DoFetch requires a jsonapi.Fetch query, got %T", q)
	}
	url := s.urls.ResourceURL(fq.Type, fq.ID)
	doc, err := s.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Data == nil {
		return nil, nil
	}
	return s.recordFromResource(*doc.Data), nil
}

// dispatch builds and executes the HTTP request for one operation, per
// §6's op-to-verb table, and returns the operations that report its
// outcome back into the caller's cache (empty/identity-preserving ops
// for most kinds; an enriching replaceRecord for addRecord, which is the
// only op whose response can introduce server-assigned state the local
// cache doesn't have yet).
func (s *Source) dispatch(ctx context.Context, o op.Operation) ([]op.Operation, error) {
	switch o.Op {
	case op.AddRecord:
		return s.dispatchAddRecord(ctx, o)
	case op.ReplaceRecord:
		return s.dispatchReplaceRecord(ctx, o)
	case op.RemoveRecord:
		url := s.urls.ResourceURL(o.Ident.Type, o.Ident.ID)
		if _, err := s.doRequest(ctx, http.MethodDelete, url, nil); err != nil {
			return nil, err
		}
		return []op.Operation{o}, nil
	case op.ReplaceKey:
		url := s.urls.ResourceURL(o.Ident.Type, o.Ident.ID)
		body := Document{Data: &Resource{
			Type:       Pluralize(o.Ident.Type),
			ID:         o.Ident.ID,
			Attributes: map[string]interface{}{o.Key: o.Value},
		}}
		if _, err := s.doRequest(ctx, http.MethodPatch, url, body); err != nil {
			return nil, err
		}
		if s.keys != nil {
			if value, ok := o.Value.(string); ok {
				s.keys.ReplaceKey(o.Ident, o.Key, value)
			}
		}
		return []op.Operation{o}, nil
	case op.ReplaceAttribute:
		url := s.urls.ResourceURL(o.Ident.Type, o.Ident.ID)
		body := Document{Data: &Resource{
			Type:       Pluralize(o.Ident.Type),
			ID:         o.Ident.ID,
			Attributes: map[string]interface{}{o.Attribute: o.Value},
		}}
		if _, err := s.doRequest(ctx, http.MethodPatch, url, body); err != nil {
			return nil, err
		}
		return []op.Operation{o}, nil
	case op.AddToHasMany:
		url := s.urls.RelationshipURL(o.Ident.Type, o.Ident.ID, o.Relationship)
		body := Relationship{Data: NewHasManyData([]ResourceIdentifier{{Type: Pluralize(o.RelatedRecord.Type), ID: o.RelatedRecord.ID}})}
		if _, err := s.doRequest(ctx, http.MethodPost, url, body); err != nil {
			return nil, err
		}
		return []op.Operation{o}, nil
	case op.RemoveFromHasMany:
		url := s.urls.RelationshipURL(o.Ident.Type, o.Ident.ID, o.Relationship)
		body := Relationship{Data: NewHasManyData([]ResourceIdentifier{{Type: Pluralize(o.RelatedRecord.Type), ID: o.RelatedRecord.ID}})}
		if _, err := s.doRequest(ctx, http.MethodDelete, url, body); err != nil {
			return nil, err
		}
		return []op.Operation{o}, nil
	case op.ReplaceHasMany:
		ids := make([]ResourceIdentifier, 0, len(o.RelatedSet))
		for _, related := range o.RelatedSet {
			ids = append(ids, ResourceIdentifier{Type: Pluralize(related.Type), ID: related.ID})
		}
		url := s.urls.ResourceURL(o.Ident.Type, o.Ident.ID)
		body := Document{Data: &Resource{
			Type:          Pluralize(o.Ident.Type),
			ID:            o.Ident.ID,
			Relationships: map[string]Relationship{o.Relationship: {Data: NewHasManyData(ids)}},
		}}
		if _, err := s.doRequest(ctx, http.MethodPatch, url, body); err != nil {
			return nil, err
		}
		return []op.Operation{o}, nil
	case op.ReplaceHasOne:
		var data RelationshipData
		if o.RelatedIsNull {
			data = NewHasOneData(nil)
		} else {
			data = NewHasOneData(&ResourceIdentifier{Type: Pluralize(o.RelatedRecord.Type), ID: o.RelatedRecord.ID})
		}
		url := s.urls.ResourceURL(o.Ident.Type, o.Ident.ID)
		body := Document{Data: &Resource{
			Type:          Pluralize(o.Ident.Type),
			ID:            o.Ident.ID,
			Relationships: map[string]Relationship{o.Relationship: {Data: data}},
		}}
		if _, err := s.doRequest(ctx, http.MethodPatch, url, body); err != nil {
			return nil, err
		}
		return []op.Operation{o}, nil
	default:
		return nil, fmt.Errorf("jsonapi: unsupported operation kind: %s", o.Op)
	}
}

func (s *Source) dispatchAddRecord(ctx context.Context, o op.Operation) ([]op.Operation, error) {
	url := s.urls.ResourceURL(o.Record.Type, "")
	body := Document{Data: &Resource{
		Type:       Pluralize(o.Record.Type),
		Attributes: o.Record.Attributes,
	}}
	doc, err := s.doRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Data == nil {
		return []op.Operation{o}, nil
	}

	merged := o.Record.Clone()
	if merged.Keys == nil {
		merged.Keys = make(map[string]string)
	}
	merged.Keys[s.cfg.keyName()] = doc.Data.ID
	if merged.Attributes == nil {
		merged.Attributes = make(map[string]interface{})
	}
	for k, v := range doc.Data.Attributes {
		merged.Attributes[k] = v
	}
	if s.keys != nil {
		s.keys.PushRecord(merged.Identity, merged.Keys)
	}
	return []op.Operation{op.NewReplaceRecord(merged)}, nil
}

func (s *Source) dispatchReplaceRecord(ctx context.Context, o op.Operation) ([]op.Operation, error) {
	url := s.urls.ResourceURL(o.Record.Type, o.Record.ID)
	body := Document{Data: &Resource{
		Type:       Pluralize(o.Record.Type),
		ID:         o.Record.ID,
		Attributes: o.Record.Attributes,
	}}
	if _, err := s.doRequest(ctx, http.MethodPatch, url, body); err != nil {
		return nil, err
	}
	return []op.Operation{o}, nil
}

func (s *Source) recordFromResource(r Resource) *model.Record {
	rec := model.NewRecord(model.Identity{Type: Singularize(r.Type), ID: r.ID})
	rec.Attributes = r.Attributes
	return rec
}

// doRequest marshals body (if non-nil), executes the request with
// cenkalti/backoff/v5 retrying transient failures, and returns the
// parsed response document. 4xx and 5xx responses are parsed as a
// JSON:API error document and returned as a dsyncerr.ServerError carrying
// it. 4xx responses are not retried; 5xx responses and transport errors
// are retried up to MaxRetries times, and the last error is returned.
// Either way the caller aborts its remaining requests (§7: "a
// mid-sequence failure aborts remaining requests").
func (s *Source) doRequest(ctx context.Context, method, url string, body interface{}) (*Document, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("jsonapi: marshal request body: %w", err)
		}
	}

	maxTries := uint(s.cfg.MaxRetries + 1)
	if maxTries == 0 {
		maxTries = 1
	}

	return backoff.Retry(ctx, func() (*Document, error) {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("jsonapi: build request: %w", err))
		}
		req.Header.Set("Accept", MediaType)
		if payload != nil {
			req.Header.Set("Content-Type", MediaType)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("jsonapi: request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("jsonapi: read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			var errDoc ErrorDocument
			_ = json.Unmarshal(respBody, &errDoc)
			return nil, dsyncerr.ServerError(errDoc, fmt.Errorf("jsonapi: upstream returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			var errDoc ErrorDocument
			_ = json.Unmarshal(respBody, &errDoc)
			return nil, backoff.Permanent(dsyncerr.ServerError(errDoc, fmt.Errorf("jsonapi: upstream rejected request with %d", resp.StatusCode)))
		}
		if len(respBody) == 0 {
			return nil, nil
		}

		var doc Document
		if err := json.Unmarshal(respBody, &doc); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("jsonapi: decode response: %w", err))
		}
		return &doc, nil
	}, backoff.WithMaxTries(maxTries), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}
