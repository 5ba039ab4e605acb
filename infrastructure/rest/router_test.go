package rest

import (
	"bytes"
	"dm-lab/domain"
	"dm-lab/errors"
	"dm-lab/mocks"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	router      http.Handler
	authService *mocks.MockIAuthService
	coordinator *mocks.MockIDeliveryCoordinator
	history     *mocks.MockIHistoryService
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		authService: mocks.NewMockIAuthService(ctrl),
		coordinator: mocks.NewMockIDeliveryCoordinator(ctrl),
		history:     mocks.NewMockIHistoryService(ctrl),
	}
	f.router = NewRouter(slog.Default(), NewHandler(slog.Default(), f.authService, f.coordinator, f.history))
	return f
}

// do sends body as JSON, with a bearer token when token is not empty.
func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	request := httptest.NewRequest(method, path, &payload)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, request)
	return recorder
}

func TestRouter_Register_And_Login(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.authService.EXPECT().Register(gomock.Any(), "alice", "ComplexPass123!").Return("token-a", nil)
	res := f.do(http.MethodPost, "/register", "", credentialsRequest{Username: "alice", Password: "ComplexPass123!"})
	req.Equal(http.StatusCreated, res.Code)
	req.JSONEq(`{"token":"token-a"}`, res.Body.String())

	f.authService.EXPECT().Login(gomock.Any(), "alice", "bad").Return("", errors.ErrInvalidCredentials)
	res = f.do(http.MethodPost, "/login", "", credentialsRequest{Username: "alice", Password: "bad"})
	req.Equal(http.StatusUnauthorized, res.Code)

	res = f.do(http.MethodPost, "/login", "", map[string]string{"username": "alice"})
	req.Equal(http.StatusBadRequest, res.Code)
}

func TestRouter_PostMessage(t *testing.T) {
	t.Run("sends as the caller", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		message := domain.Message{
			ID:        uuid.New(),
			Sender:    "alice",
			Recipient: "bob",
			Content:   "hello",
			Sequence:  1,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		f.authService.EXPECT().Verify("token-a").Return("alice", nil)
		f.coordinator.EXPECT().
			Send(gomock.Any(), domain.SendMessageCommand{Sender: "alice", Recipient: "bob", Content: "hello"}).
			Return(message, nil)

		res := f.do(http.MethodPost, "/message", "token-a", postMessageRequest{Recipient: "bob", Content: "hello"})

		req.Equal(http.StatusCreated, res.Code)
		var got MessageResponse
		req.NoError(json.Unmarshal(res.Body.Bytes(), &got))
		req.Equal(toMessageResponse(message), got)
	})

	t.Run("refuses to send on behalf of someone else", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.authService.EXPECT().Verify("token-a").Return("alice", nil)
		f.coordinator.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

		res := f.do(http.MethodPost, "/message", "token-a", postMessageRequest{Sender: "bob", Recipient: "carol", Content: "x"})

		req.Equal(http.StatusForbidden, res.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		res := f.do(http.MethodPost, "/message", "", postMessageRequest{Recipient: "bob", Content: "x"})

		req.Equal(http.StatusUnauthorized, res.Code)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.authService.EXPECT().Verify("token-a").Return("alice", nil)
		f.coordinator.EXPECT().Send(gomock.Any(), gomock.Any()).Return(domain.Message{}, errors.ErrStorageUnavailable)

		res := f.do(http.MethodPost, "/message", "token-a", postMessageRequest{Recipient: "bob", Content: "x"})

		req.Equal(http.StatusServiceUnavailable, res.Code)
	})
}

func TestRouter_GetHistory(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.authService.EXPECT().Verify("token-c").Return("carol", nil).Times(2)
	f.history.EXPECT().
		GetHistory(gomock.Any(), domain.GetHistoryCommand{Caller: "carol", UserA: "carol", UserB: "alice"}).
		Return([]domain.Message{}, nil)
	f.history.EXPECT().
		GetHistory(gomock.Any(), domain.GetHistoryCommand{Caller: "carol", UserA: "alice", UserB: "bob"}).
		Return(nil, errors.ErrForbidden)

	res := f.do(http.MethodGet, "/history/carol/alice", "token-c", nil)
	req.Equal(http.StatusOK, res.Code)
	req.JSONEq(`{"messages":[]}`, res.Body.String())

	res = f.do(http.MethodGet, "/history/alice/bob", "token-c", nil)
	req.Equal(http.StatusForbidden, res.Code)
}

func TestRouter_GetPartners(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.authService.EXPECT().Verify("token-b").Return("bob", nil)
	f.history.EXPECT().
		GetPartners(gomock.Any(), domain.GetPartnersCommand{Caller: "bob", User: "bob"}).
		Return([]domain.Identity{"alice", "carol"}, nil)

	res := f.do(http.MethodGet, "/partners/bob", "token-b", nil)

	req.Equal(http.StatusOK, res.Code)
	req.JSONEq(`{"partners":["alice","carol"]}`, res.Body.String())
}
