package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/metrics"
)

type recorded struct {
	contentType string
	form        map[string]string
}

func newPanel(t *testing.T, status int, body string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{form: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.ParseForm() != nil {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rec.contentType = r.Header.Get("Content-Type")
		for k := range r.PostForm {
			rec.form[k] = r.PostForm.Get(k)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "k3y", time.Second, nil, nil), rec
}

func TestAddSendsFormAndParsesOrder(t *testing.T) {
	c, rec := newPanel(t, http.StatusOK, `{"order": 23501}`)

	id, err := c.Add(context.Background(), AddRequest{Service: 1, Link: "https://x.test/p", Quantity: 500, Runs: 2})
	require.NoError(t, err)
	require.Equal(t, "23501", id)

	require.Equal(t, "application/x-www-form-urlencoded", rec.contentType)
	require.Equal(t, "k3y", rec.form["key"])
	require.Equal(t, "add", rec.form["action"])
	require.Equal(t, "1", rec.form["service"])
	require.Equal(t, "500", rec.form["quantity"])
	require.Equal(t, "2", rec.form["runs"])
	_, hasComments := rec.form["comments"]
	require.False(t, hasComments)
	_, hasInterval := rec.form["interval"]
	require.False(t, hasInterval)
}

func TestAddOmitsZeroQuantity(t *testing.T) {
	c, rec := newPanel(t, http.StatusOK, `{"order": "77"}`)

	id, err := c.Add(context.Background(), AddRequest{Service: 9, Link: "l"})
	require.NoError(t, err)
	require.Equal(t, "77", id)
	_, hasQty := rec.form["quantity"]
	require.False(t, hasQty)
}

func TestRemoteErrorIsNormalized(t *testing.T) {
	c, _ := newPanel(t, http.StatusOK, `{"error": "Not enough funds on balance"}`)

	_, err := c.Add(context.Background(), AddRequest{Service: 1, Link: "l", Quantity: 10})
	require.ErrorIs(t, err, ErrUpstream)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindRemote, perr.Kind)
	require.Equal(t, "Not enough funds on balance", perr.Message)
}

func TestHTTPErrorTruncatesDetails(t *testing.T) {
	body := strings.Repeat("x", 1000)
	c, _ := newPanel(t, http.StatusBadGateway, body)

	_, err := c.Status(context.Background(), "1")
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindHTTP, perr.Kind)
	require.Equal(t, http.StatusBadGateway, perr.StatusCode)
	require.Len(t, perr.Details, maxDetailsLen)
}

func TestRemoteErrorMessageIsTruncated(t *testing.T) {
	c, _ := newPanel(t, http.StatusOK, `{"error":"`+strings.Repeat("x", 5000)+`"}`)

	_, err := c.Add(context.Background(), AddRequest{Service: 1, Link: "l", Quantity: 10})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindRemote, perr.Kind)
	require.Len(t, perr.Message, maxDetailsLen)
	require.Len(t, perr.Details, maxDetailsLen)
	require.Less(t, len(err.Error()), 500)
}

func TestRemoteErrorPrefersProviderDetails(t *testing.T) {
	c, _ := newPanel(t, http.StatusOK, `{"error":"Incorrect link","details":"link must be a public profile"}`)

	_, err := c.Add(context.Background(), AddRequest{Service: 1, Link: "l", Quantity: 10})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "Incorrect link", perr.Message)
	require.Equal(t, "link must be a public profile", perr.Details)

	c, _ = newPanel(t, http.StatusBadRequest, `{"error":"bad key","details":{"code":7}}`)
	_, err = c.Status(context.Background(), "1")
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindHTTP, perr.Kind)
	require.Equal(t, "bad key", perr.Message)
	require.Equal(t, `{"code":7}`, perr.Details)
}

func TestNonJSONBodyIsParseError(t *testing.T) {
	c, _ := newPanel(t, http.StatusOK, "<html>maintenance</html>")

	_, err := c.Refill(context.Background(), "1")
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindParse, perr.Kind)
	require.Equal(t, "<html>maintenance</html>", perr.Details)
}

func TestMissingOrderIDIsParseError(t *testing.T) {
	c, _ := newPanel(t, http.StatusOK, `{}`)

	_, err := c.Add(context.Background(), AddRequest{Service: 1, Link: "l"})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindParse, perr.Kind)
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"order": 1}`))
	}))
	t.Cleanup(srv.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := NewClient(srv.URL, "k", 50*time.Millisecond, nil, m)

	_, err := c.Add(context.Background(), AddRequest{Service: 1, Link: "l"})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindTimeout, perr.Kind)
	require.Equal(t, 1, testutil.CollectAndCount(m.ProviderDuration))
}

func TestStatusParsesLooseTypes(t *testing.T) {
	c, rec := newPanel(t, http.StatusOK, `{"charge":"0.27819","start_count":3572,"status":"Partial","remains":"157","currency":"USD"}`)

	st, err := c.Status(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "42", rec.form["order"])
	require.Equal(t, "Partial", st.Status)

	charge, ok := st.Charge.Decimal()
	require.True(t, ok)
	require.Equal(t, "0.27819", charge.String())
	start, ok := st.StartCount.Int64()
	require.True(t, ok)
	require.Equal(t, int64(3572), start)
	remains, ok := st.Remains.Int64()
	require.True(t, ok)
	require.Equal(t, int64(157), remains)
}

func TestMultiStatusAndCancelJoinIDs(t *testing.T) {
	c, rec := newPanel(t, http.StatusOK, `{"1":{"status":"Completed"},"2":{"error":"Incorrect order ID"}}`)

	raw, err := c.MultiStatus(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	require.Equal(t, "1,2", rec.form["orders"])
	require.JSONEq(t, `{"1":{"status":"Completed"},"2":{"error":"Incorrect order ID"}}`, string(raw))

	c, rec = newPanel(t, http.StatusOK, `[{"order":1,"cancel":1}]`)
	raw, err = c.Cancel(context.Background(), []string{"1", "3"})
	require.NoError(t, err)
	require.Equal(t, "cancel", rec.form["action"])
	require.Equal(t, "1,3", rec.form["orders"])
	require.JSONEq(t, `[{"order":1,"cancel":1}]`, string(raw))
}

func TestRefillStatus(t *testing.T) {
	c, rec := newPanel(t, http.StatusOK, `{"status":"Completed"}`)

	st, err := c.RefillStatus(context.Background(), "r-9")
	require.NoError(t, err)
	require.Equal(t, "Completed", st)
	require.Equal(t, "r-9", rec.form["refill"])
}

func TestServices(t *testing.T) {
	c, _ := newPanel(t, http.StatusOK, `[{"service":1,"name":"Followers","type":"Default","category":"Instagram","rate":"0.90","min":"50","max":"10000"}]`)

	svcs, err := c.Services(context.Background())
	require.NoError(t, err)
	require.Len(t, svcs, 1)
	require.Equal(t, Text("1"), svcs[0].Service)
	require.Equal(t, Text("0.90"), svcs[0].Rate)
}

func TestTruncateIsRuneSafe(t *testing.T) {
	require.Equal(t, "ção", truncate("çãoxyz", 3))
	require.Equal(t, "ab", truncate("ab", 10))
}
