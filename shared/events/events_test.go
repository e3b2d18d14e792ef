package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageAndDecode(t *testing.T) {
	raw := `{"id":"e-1","type":"person.updated","timestamp":"2026-01-02T03:04:05Z","data":{"personId":"per-1","cityId":2,"previousCityId":1}}`

	event, err := parseMessage(map[string]any{"event": raw})
	require.NoError(t, err)
	assert.Equal(t, PersonUpdated, event.Type)

	var data PersonUpdatedEvent
	require.NoError(t, Decode(event, &data))
	assert.Equal(t, PersonUpdatedEvent{PersonID: "per-1", CityID: 2, PreviousCityID: 1}, data)
}

func TestParseMessageRejectsMalformed(t *testing.T) {
	_, err := parseMessage(map[string]any{"other": "x"})
	assert.Error(t, err)

	_, err = parseMessage(map[string]any{"event": "{"})
	assert.Error(t, err)
}

func TestEncodeEventRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	values, err := encodeEvent(Event{
		ID:        "e-2",
		Type:      PersonDeleted,
		Timestamp: ts,
		Data:      PersonDeletedEvent{PersonID: "per-9", CityID: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, PersonDeleted, values["type"])

	event, err := parseMessage(values)
	require.NoError(t, err)
	assert.Equal(t, "e-2", event.ID)
	assert.True(t, ts.Equal(event.Timestamp))

	var data PersonDeletedEvent
	require.NoError(t, Decode(event, &data))
	assert.Equal(t, PersonDeletedEvent{PersonID: "per-9", CityID: 3}, data)
}

func TestParseMessageRequiresType(t *testing.T) {
	_, err := parseMessage(map[string]any{"event": `{"id":"e-3","data":{}}`})
	assert.Error(t, err)
}

func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "person.events.dead", DeadLetterStream(PersonEventsStream))
}
