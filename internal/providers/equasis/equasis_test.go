package equasis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		LoginPath:      "/login",
		SearchPath:     "/search",
		EmailPattern:   "user%d@example.com",
		Password:       "secret",
		AccountFrom:    1,
		AccountTo:      3,
		RequestsPerMin: 60000,
	}
}

const shipPage = `
<html><body>
<h3>Ship info</h3>
<p>Flag (LR) Liberia</p>
<table>
<tr><th>Name of P&amp;I insurer</th><th>Inception date</th></tr>
<tr><td><a href="#">Gard P&amp;I (Bermuda) Ltd</a></td><td>since 01/05/2022</td></tr>
<tr><td>American Steamship Owners Mutual</td><td></td></tr>
</table>
<table>
<tr><th>Registered owner</th><th>Address</th><th>Since</th></tr>
<tr><td>Sun Ship Management D Ltd</td><td>Dubai, United Arab Emirates</td><td>during 03/2021</td></tr>
</table>
<table>
<tr><th>Ship manager / Commercial manager</th><th>Address</th><th>Since</th></tr>
<tr><td>Oceanic Managers Inc</td><td>Piraeus, Greece</td><td>since 15/07/2020</td></tr>
</table>
</body></html>`

func TestParseShipPage(t *testing.T) {
	details := parseShipPage(shipPage)

	assert.Equal(t, "LR", details.FlagISO2)

	require.Len(t, details.Insurers, 2)
	assert.Equal(t, "Gard P&I (Bermuda) Ltd", details.Insurers[0].Name)
	require.NotNil(t, details.Insurers[0].DateFrom)
	assert.Equal(t, time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC), *details.Insurers[0].DateFrom)
	assert.Nil(t, details.Insurers[1].DateFrom)

	require.Len(t, details.Owners, 1)
	assert.Equal(t, "Sun Ship Management D Ltd", details.Owners[0].Name)
	assert.Equal(t, "Dubai, United Arab Emirates", details.Owners[0].Address)
	require.NotNil(t, details.Owners[0].DateFrom)
	assert.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), *details.Owners[0].DateFrom)

	require.Len(t, details.Managers, 1)
	assert.Equal(t, "Oceanic Managers Inc", details.Managers[0].Name)
}

func TestShipDetailsLoginAndFetch(t *testing.T) {
	var loggedIn string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/login":
			loggedIn = r.PostFormValue("j_email")
			fmt.Fprint(w, "<html>welcome</html>")
		case "/search":
			assert.Equal(t, "9700001", r.PostFormValue("P_IMO"))
			fmt.Fprint(w, shipPage)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	scraper, err := NewWithConfig(testConfig(server.URL), nil)
	require.NoError(t, err)

	details, err := scraper.ShipDetails(context.Background(), "9700001")
	require.NoError(t, err)
	assert.Equal(t, "user1@example.com", loggedIn)
	assert.Equal(t, "9700001", details.IMO)
	assert.Equal(t, "LR", details.FlagISO2)
	require.Len(t, details.Insurers, 2)
}

func TestShipDetailsRotatesDeniedAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.URL.Path == "/login" && r.PostFormValue("j_email") == "user1@example.com" {
			fmt.Fprint(w, "Protected area, your access is denied")
			return
		}
		if r.URL.Path == "/login" {
			fmt.Fprint(w, "<html>welcome</html>")
			return
		}
		fmt.Fprint(w, shipPage)
	}))
	defer server.Close()

	scraper, err := NewWithConfig(testConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = scraper.ShipDetails(context.Background(), "9700001")
	require.NoError(t, err)
	assert.Equal(t, "user2@example.com", scraper.session.account.Email)
	assert.Len(t, scraper.accounts, 2, "denied account leaves the pool")
}

func TestShipDetailsRotatesWhenSessionDiesMidRun(t *testing.T) {
	var searches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.URL.Path == "/login" {
			fmt.Fprint(w, "<html>welcome</html>")
			return
		}
		searches++
		if searches == 1 {
			fmt.Fprint(w, "Protected area, your access is denied")
			return
		}
		fmt.Fprint(w, shipPage)
	}))
	defer server.Close()

	scraper, err := NewWithConfig(testConfig(server.URL), nil)
	require.NoError(t, err)

	details, err := scraper.ShipDetails(context.Background(), "9700001")
	require.NoError(t, err)
	assert.Equal(t, "LR", details.FlagISO2)
	assert.Equal(t, "user2@example.com", scraper.session.account.Email)
}

func TestShipDetailsPoolExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Protected area, your access is denied")
	}))
	defer server.Close()

	scraper, err := NewWithConfig(testConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = scraper.ShipDetails(context.Background(), "9700001")
	require.ErrorIs(t, err, ErrPoolExhausted)
}

func TestShipDetailsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			fmt.Fprint(w, "<html>welcome</html>")
			return
		}
		fmt.Fprint(w, "<html>No ship corresponds to your search</html>")
	}))
	defer server.Close()

	scraper, err := NewWithConfig(testConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = scraper.ShipDetails(context.Background(), "0000000")
	require.ErrorIs(t, err, ErrShipNotFound)
}

func TestNewWithConfigExpandsAccountPool(t *testing.T) {
	scraper, err := NewWithConfig(testConfig("http://example.invalid"), nil)
	require.NoError(t, err)
	require.Len(t, scraper.accounts, 3)
	assert.Equal(t, "user1@example.com", scraper.accounts[0].Email)
	assert.Equal(t, "user3@example.com", scraper.accounts[2].Email)
}

func TestNewWithConfigRequiresEmailPattern(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.EmailPattern = ""
	_, err := NewWithConfig(cfg, nil)
	require.Error(t, err)
}
