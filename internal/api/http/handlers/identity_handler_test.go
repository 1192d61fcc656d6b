package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/identity-service/internal/api/http"
	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
)

// capturingDispatcher records published events for assertions.
type capturingDispatcher struct {
	published []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func newLinkTestApp(t *testing.T) (*fiber.App, graph.Store, *capturingDispatcher) {
	t.Helper()
	store := graph.NewMemoryStore()
	dispatcher := &capturingDispatcher{}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	handler := handlers.NewIdentityHandler(nil, nil, store, nil, dispatcher, nil)
	app.Post("/identity/:id/links", handler.AddLink)
	return app, store, dispatcher
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error.Code
}

func TestAddLinkCreatesAndPublishes(t *testing.T) {
	ctx := context.Background()
	app, store, dispatcher := newLinkTestApp(t)

	identity, err := store.CreateIdentity(ctx, "ann@example.com", "Ann")
	require.NoError(t, err)

	resp := postJSON(t, app, "/identity/"+identity.ID+"/links",
		`{"id_type":"ticketing_id","id_value":"T42","verified":true}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	owner, err := store.LookupOwner(ctx, domain.IdentifierTicketingID, "T42")
	require.NoError(t, err)
	assert.Equal(t, identity.ID, owner)

	require.Len(t, dispatcher.published, 1)
	event := dispatcher.published[0]
	assert.Equal(t, events.EventIdentityLinked, event.Type)
	assert.Equal(t, identity.ID, event.CanonicalID)
	assert.Equal(t, "manual", event.PerformedBy)

	payload, ok := event.Payload.(events.IdentityLinkedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.IdentifierTicketingID, payload.IDType)
	assert.True(t, payload.Verified)
}

func TestAddLinkRejectsMalformedHashValue(t *testing.T) {
	ctx := context.Background()
	app, store, dispatcher := newLinkTestApp(t)

	identity, err := store.CreateIdentity(ctx, "ann@example.com", "Ann")
	require.NoError(t, err)

	resp := postJSON(t, app, "/identity/"+identity.ID+"/links",
		`{"id_type":"email_hash","id_value":"not-a-digest"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, resp))

	_, err = store.LookupOwner(ctx, domain.IdentifierEmailHash, "not-a-digest")
	assert.ErrorIs(t, err, graph.ErrNotFound)
	assert.Empty(t, dispatcher.published)
}

func TestAddLinkConflictIsMapped(t *testing.T) {
	ctx := context.Background()
	app, store, dispatcher := newLinkTestApp(t)

	first, err := store.CreateIdentity(ctx, "ann@example.com", "Ann")
	require.NoError(t, err)
	second, err := store.CreateIdentity(ctx, "bob@example.com", "Bob")
	require.NoError(t, err)
	require.NoError(t, store.Link(ctx, domain.IdentityLink{
		IDType: domain.IdentifierTicketingID, IDValue: "T42",
		CanonicalID: first.ID, Source: "manual", Confidence: 1.0,
	}))

	resp := postJSON(t, app, "/identity/"+second.ID+"/links",
		`{"id_type":"ticketing_id","id_value":"T42"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "LINK_CONFLICT", errorCode(t, resp))
	assert.Empty(t, dispatcher.published)
}
