package server

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raterudder/balancepoint/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHandleUsage(t *testing.T) {
	post := func(srv *Server, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/usage", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)
		return w
	}

	t.Run("Stores Readings", func(t *testing.T) {
		srv, db, _ := newTestServer()
		want := types.Series{
			{TS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1000},
			{TS: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), Value: 850.5},
		}
		db.On("UpsertUsage", mock.Anything, types.SiteIDNone, mock.MatchedBy(func(s types.Series) bool {
			if len(s) != len(want) {
				return false
			}
			for i := range s {
				if !s[i].TS.Equal(want[i].TS) || s[i].Value != want[i].Value {
					return false
				}
			}
			return true
		})).Return(nil).Once()

		w := post(srv, `{"readings":[{"ts":"2024-01-01T00:00:00Z","wh":1000},{"ts":"2024-01-01T01:00:00Z","wh":850.5}]}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"stored":2}`, w.Body.String())
		db.AssertExpectations(t)
	})

	t.Run("Negative Reading", func(t *testing.T) {
		srv, db, _ := newTestServer()
		w := post(srv, `{"readings":[{"ts":"2024-01-01T00:00:00Z","wh":-1}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		db.AssertNotCalled(t, "UpsertUsage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing Timestamp", func(t *testing.T) {
		srv, _, _ := newTestServer()
		w := post(srv, `{"readings":[{"wh":10}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "readings[0] missing ts")
	})

	t.Run("Storage Error", func(t *testing.T) {
		srv, db, _ := newTestServer()
		db.On("UpsertUsage", mock.Anything, types.SiteIDNone, mock.Anything).Return(errors.New("db down"))
		w := post(srv, `{"readings":[{"ts":"2024-01-01T00:00:00Z","wh":1}]}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
