package custody

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestClientDepositSendsSecretAndDecodesReceipt(t *testing.T) {
	var gotSecret, gotPath string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Custody-Shared-Secret")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a1","user":"0x1111111111111111111111111111111111111111","asset":"0x2222222222222222222222222222222222222222","result":"0x3e8","time":"2026-08-26T00:00:00Z"}`))
	}))
	defer srv.Close()

	client, err := New(Config{
		BaseURL:            srv.URL,
		SharedSecretHeader: "X-Custody-Shared-Secret",
		SharedSecretValue:  "s3cret",
	})
	require.NoError(t, err)

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	asset := common.HexToAddress("0x2222222222222222222222222222222222222222")
	op, err := client.Deposit(context.Background(), user, asset, big.NewInt(1000))
	require.NoError(t, err)

	require.Equal(t, "s3cret", gotSecret)
	require.Equal(t, "/deposit", gotPath)
	require.Equal(t, "0x3e8", gotPayload["amount"])
	require.Equal(t, int64(1000), op.Result.ToInt().Int64())
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"custody engine: user health factor too low"}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	asset := common.HexToAddress("0x2222222222222222222222222222222222222222")
	_, err = client.Borrow(context.Background(), user, asset, big.NewInt(1))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Contains(t, apiErr.Message, "health factor")
}

func TestClientCloseoutOmitsAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, hasAmount := payload["amount"]
		require.False(t, hasAmount)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"b2","result":"0x41a"}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	asset := common.HexToAddress("0x2222222222222222222222222222222222222222")
	op, err := client.WithdrawAll(context.Background(), user, asset)
	require.NoError(t, err)
	require.Equal(t, int64(1050), op.Result.ToInt().Int64())
}
