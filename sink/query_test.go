//go:build test

package sink

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newQueryServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *QueryClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewQueryClient(zerolog.Nop(), server.URL+"/api/v1/query", 5*time.Second)
}

func TestQueryLast_ReturnsLastValue(t *testing.T) {
	_, client := newQueryServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "xrpl_validation_agreements_1h", r.URL.Query().Get("query"))
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"__name__":"xrpl_validation_agreements_1h"},"value":[1717243200,"42"]}]}}`)
	})

	value, found, err := client.QueryLast(context.Background(), "xrpl_validation_agreements_1h")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 42.0, value)
}

func TestQueryLast_EmptyResultIsNotAnError(t *testing.T) {
	_, client := newQueryServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	})

	_, found, err := client.QueryLast(context.Background(), "never_written")
	require.NoError(t, err)
	require.False(t, found)
}

func TestQueryLast_ErrorStatus(t *testing.T) {
	_, client := newQueryServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","data":{}}`)
	})

	_, _, err := client.QueryLast(context.Background(), "anything")
	require.Error(t, err)
}

func TestQueryLast_HTTPFailure(t *testing.T) {
	_, client := newQueryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := client.QueryLast(context.Background(), "anything")
	require.Error(t, err)
}
