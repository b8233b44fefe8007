package detector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jimbolo/convtrack/internal/source"
	"github.com/jimbolo/convtrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSignals_Routing(t *testing.T) {
	testInitLogger(t)
	sender := &mockSender{}
	d := startDetector(t, testConfig(), NewHost(), sender)

	var batch Batch
	require.NoError(t, json.Unmarshal([]byte(`{"signals":[
		{"kind":"network","url":"https://shop.example/api/purchase","status":200,"body":"{\"order_id\":\"B1\",\"total\":\"20.00\"}"},
		{"kind":"custom","name":"checkout","detail":{"transactionId":"B2","amount":7}},
		{"kind":"storage","area":"session","key":"purchase_data","value":"{\"order_id\":\"B3\",\"total\":\"5\"}"},
		{"kind":"navigation","trigger":"pushState","url":"/cart"},
		{"kind":"teleport"}
	]}`), &batch))

	applied, err := d.HandleSignals(batch.Signals)
	assert.Equal(t, 4, applied)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSignal)
	assert.Equal(t, "/cart", d.Host().History.Location())

	require.Eventually(t, func() bool { return len(sender.Payloads()) == 3 }, 2*time.Second, 10*time.Millisecond)
	ids := make([]string, 0, 3)
	for _, p := range sender.Payloads() {
		ids = append(ids, p.TransactionID)
	}
	assert.ElementsMatch(t, []string{"B1", "B2", "B3"}, ids)
}

func TestHandleSignals_Mirrors(t *testing.T) {
	testInitLogger(t)
	d := startDetector(t, testConfig(), NewHost(), &mockSender{})
	host := d.Host()

	applied, err := d.HandleSignals([]Signal{
		{Kind: KindCookie, Name: "session", Value: "abc"},
		{Kind: KindDocument, HTML: "<p>hello</p>"},
		{Kind: KindStorage, Area: "session", Key: "cart_data", Value: "[]"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	assert.Equal(t, "session=abc", host.Cookies.Cookies())
	assert.Equal(t, "<p>hello</p>", host.Document.Document())
	v, ok := host.Storage.Get("cart_data")
	assert.True(t, ok)
	assert.Equal(t, "[]", v)

	_, err = d.HandleSignals([]Signal{{Kind: KindCookie, Name: "session"}, {Kind: KindStorage, Area: "session", Key: "cart_data"}})
	require.NoError(t, err)
	assert.Empty(t, host.Cookies.Cookies())
	_, ok = host.Storage.Get("cart_data")
	assert.False(t, ok)
}

func TestHandleSignals_UnmirroredHost(t *testing.T) {
	testInitLogger(t)
	d := startDetector(t, testConfig(), &Host{Storage: source.NewMemoryStorage()}, &mockSender{})

	tests := []struct {
		name string
		sig  Signal
	}{
		{"cookie without jar", Signal{Kind: KindCookie, Name: "a", Value: "b"}},
		{"document without page", Signal{Kind: KindDocument, HTML: "<p></p>"}},
		{"push without history", Signal{Kind: KindNavigation, Trigger: "pushState", URL: "/x"}},
		{"unknown trigger", Signal{Kind: KindNavigation, Trigger: "reload"}},
		{"unknown storage area", Signal{Kind: KindStorage, Area: "indexeddb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied, err := d.HandleSignals([]Signal{tt.sig})
			assert.Zero(t, applied)
			assert.ErrorIs(t, err, ErrUnsupportedSignal)
		})
	}

	_, err := d.HandleSignals([]Signal{{Kind: KindCustom, Name: "purchase", Detail: json.RawMessage(`{bad`)}})
	assert.Error(t, err)
	_, err = d.HandleSignals([]Signal{{Kind: KindPerformance, Entries: []source.PerformanceEntry{{Name: "https://shop.example/thank-you", EntryType: "navigation"}}}})
	assert.NoError(t, err)
	require.Eventually(t, func() bool { return d.Stats().ProcessedEvents == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.SourcePerformance, d.Stats().LastEvent.Source)
}
