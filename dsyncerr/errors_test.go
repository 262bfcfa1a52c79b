package dsyncerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsync.evalgo.org/dsyncerr"
)

func TestNotAllowedFormatsMessage(t *testing.T) {
	err := dsyncerr.NotAllowed("fetch would dispatch %d requests, exceeds cap %d", 3, 1)
	assert.Equal(t, dsyncerr.KindNotAllowed, err.Kind)
	assert.Contains(t, err.Error(), "fetch would dispatch 3 requests, exceeds cap 1")
}

func TestRecordNotFoundMessage(t *testing.T) {
	err := dsyncerr.RecordNotFound("planet", "42")
	assert.Equal(t, dsyncerr.KindRecordNotFound, err.Kind)
	assert.Contains(t, err.Error(), "planet:42")
}

func TestRelationshipNotFoundMessage(t *testing.T) {
	err := dsyncerr.RelationshipNotFound("planet", "moons")
	assert.Equal(t, dsyncerr.KindRelationshipNotFound, err.Kind)
	assert.Contains(t, err.Error(), "planet.moons")
}

func TestServerErrorCarriesPayloadAndUnwraps(t *testing.T) {
	cause := errors.New("422 unprocessable")
	payload := map[string]string{"detail": "nope"}
	err := dsyncerr.ServerError(payload, cause)

	assert.Equal(t, dsyncerr.KindServerError, err.Kind)
	assert.Equal(t, payload, err.Payload)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), cause.Error())
}

func TestSchemaErrorMessage(t *testing.T) {
	err := dsyncerr.SchemaError("model %q has no inverse for %q", "planet", "moons")
	assert.Equal(t, dsyncerr.KindSchemaError, err.Kind)
	assert.Contains(t, err.Error(), `model "planet" has no inverse for "moons"`)
}

func TestQueueErrorWrapsCause(t *testing.T) {
	cause := errors.New("action rejected")
	err := dsyncerr.QueueError(cause)
	assert.Equal(t, dsyncerr.KindQueueError, err.Kind)
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesByKindAcrossWrapping(t *testing.T) {
	base := dsyncerr.RecordNotFound("planet", "42")
	wrapped := fmt.Errorf("looking up record: %w", base)

	assert.True(t, dsyncerr.Is(wrapped, dsyncerr.KindRecordNotFound))
	assert.False(t, dsyncerr.Is(wrapped, dsyncerr.KindServerError))
	assert.False(t, dsyncerr.Is(errors.New("plain error"), dsyncerr.KindRecordNotFound))
}

func TestErrorsIsCompatibleViaIsMethod(t *testing.T) {
	sentinel := dsyncerr.RecordNotFound("", "")
	err := fmt.Errorf("wrapping: %w", dsyncerr.RecordNotFound("planet", "42"))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, dsyncerr.SchemaError("")))
}

func TestWrapReturnsNilForNilError(t *testing.T) {
	assert.NoError(t, dsyncerr.Wrap(nil, "doing thing"))
}

func TestWrapAttachesContextAndUnwraps(t *testing.T) {
	cause := errors.New("boom")
	wrapped := dsyncerr.Wrap(cause, "applying transform %s", "t-1")
	require.Error(t, wrapped)
	assert.Contains(t, wrapped.Error(), "applying transform t-1")
	assert.ErrorIs(t, wrapped, cause)
}
