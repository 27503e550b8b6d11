package watch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/nutrilens/internal/model"
)

func TestClient_Result(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/result/done":
			_, _ = w.Write([]byte(`{"status":"done","foods_detected":["apple"],"nutrition_info":{"apple":{"calories":52,"protein":"Unknown","carbs":"14","fat":0.2}}}`))
		case "/result/failed":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"error","message":"detection failed"}`))
		case "/result/garbage":
			_, _ = w.Write([]byte(`<html>`))
		case "/result/limited":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`slow down`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"job not found"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	ctx := context.Background()

	view, err := c.Result(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, view.Status)
	assert.Equal(t, []string{"apple"}, view.FoodsDetected)
	apple := view.NutritionInfo["apple"]
	assert.False(t, apple.Protein.IsKnown())
	carbs, ok := apple.Carbs.Value()
	assert.True(t, ok)
	assert.Equal(t, 14.0, carbs)

	view, err = c.Result(ctx, "failed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, view.Status)
	assert.Equal(t, "detection failed", view.Message)

	_, err = c.Result(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrJobNotFound)

	_, err = c.Result(ctx, "garbage")
	assert.ErrorIs(t, err, model.ErrMalformedResponse)

	_, err = c.Result(ctx, "limited")
	var httpErr *model.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
}
