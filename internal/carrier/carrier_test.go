package carrier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallMeBotSend(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"phone":  r.URL.Query().Get("phone"),
			"text":   r.URL.Query().Get("text"),
			"apikey": r.URL.Query().Get("apikey"),
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Message queued."))
	}))
	defer srv.Close()

	c := NewCallMeBot("default-key").WithBaseURL(srv.URL)

	resp, err := c.Send(context.Background(), Recipient{Phone: "+5355512345"}, "hola")
	require.NoError(t, err)
	assert.Equal(t, "Message queued.", resp)
	assert.Equal(t, "+5355512345", gotQuery["phone"])
	assert.Equal(t, "hola", gotQuery["text"])
	assert.Equal(t, "default-key", gotQuery["apikey"])

	// Per-recipient key wins over the account key.
	_, err = c.Send(context.Background(), Recipient{Phone: "+5355512345", CallMeBotKey: "personal"}, "hola")
	require.NoError(t, err)
	assert.Equal(t, "personal", gotQuery["apikey"])
}

func TestCallMeBotRejectsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The API reports bad keys with 200 and an error text.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ERROR: APIKey is invalid"))
	}))
	defer srv.Close()

	c := NewCallMeBot("bad").WithBaseURL(srv.URL)
	_, err := c.Send(context.Background(), Recipient{Phone: "+5355512345"}, "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey is invalid")
}

func TestCallMeBotNotConfigured(t *testing.T) {
	c := NewCallMeBot("")
	_, err := c.Send(context.Background(), Recipient{Phone: "+5355512345"}, "hola")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWhatsAppBusinessSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/phone-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"wamid.abc"}]}`))
	}))
	defer srv.Close()

	c := NewWhatsAppBusiness("tok", "phone-1").WithBaseURL(srv.URL)
	resp, err := c.Send(context.Background(), Recipient{Phone: "+5355512345"}, "hola")
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc", resp)
}

func TestWhatsAppBusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))
	defer srv.Close()

	c := NewWhatsAppBusiness("expired", "phone-1").WithBaseURL(srv.URL)
	_, err := c.Send(context.Background(), Recipient{Phone: "+5355512345"}, "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token")

	_, err = NewWhatsAppBusiness("", "").Send(context.Background(), Recipient{}, "hola")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestChainFallback(t *testing.T) {
	broken := NewMock("broken")
	broken.Err = errors.New("gateway timeout")
	unconfigured := NewMock("unconfigured")
	unconfigured.Err = ErrNotConfigured
	working := NewMock("working")

	chain := NewChainOf(unconfigured, broken, working)
	name, resp, err := chain.Send(context.Background(), Recipient{Name: "Ana"}, "hola")
	require.NoError(t, err)
	assert.Equal(t, "working", name)
	assert.Equal(t, "working-1", resp)
	assert.Equal(t, 1, working.Count())
}

func TestChainAllFail(t *testing.T) {
	broken := NewMock("broken")
	broken.Err = errors.New("gateway timeout")

	_, _, err := NewChainOf(broken).Send(context.Background(), Recipient{}, "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway timeout")

	// A chain of nothing but unconfigured carriers also fails, with
	// ErrNotConfigured as the cause.
	empty := NewMock("empty")
	empty.Err = ErrNotConfigured
	_, _, err = NewChainOf(empty).Send(context.Background(), Recipient{}, "hola")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
