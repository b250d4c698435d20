package vrpcheck

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetcherGetVRPs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "ribscan-test/1.0" {
			t.Errorf("unexpected User-Agent: %s", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"metadata": {"counts": 2},
			"roas": [
				{"prefix": "10.0.0.0/16", "maxLength": 24, "asn": "AS65001", "ta": "test"},
				{"prefix": "2001:db8::/32", "maxLength": 48, "asn": "AS65004", "ta": "test"}
			]
		}`))
	}))
	defer server.Close()

	fetcher := &Fetcher{UserAgent: "ribscan-test/1.0"}
	roalist, err := fetcher.GetVRPs(server.URL + "/output.json")
	assert.Nil(t, err)
	assert.Len(t, roalist.Data, 2)
	assert.Equal(t, uint32(65001), roalist.Data[0].GetASN())
	assert.Equal(t, 24, roalist.Data[0].GetMaxLen())
}

func TestFetcherGetVRPsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := &Fetcher{UserAgent: "ribscan-test/1.0"}
	_, err := fetcher.GetVRPs(server.URL + "/missing.json")
	assert.NotNil(t, err)
}

func TestFetcherGetVRPsBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	fetcher := &Fetcher{UserAgent: "ribscan-test/1.0"}
	_, err := fetcher.GetVRPs(server.URL)
	assert.NotNil(t, err)
}
