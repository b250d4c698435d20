package vrpcheck

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cloudflare/gortr/prefixfile"
)

// Fetcher retrieves a VRP export over HTTP, the way validator
// deployments publish one (an output.json endpoint).
type Fetcher struct {
	UserAgent string
	Client    *http.Client
}

func (f *Fetcher) GetVRPs(url string) (*prefixfile.ROAList, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("Fetching error: %v", err)
	}

	req.Header.Set("User-Agent", f.UserAgent)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Fetching error: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Fetching status error: %v", res.StatusCode)
	}

	roalist := &prefixfile.ROAList{}
	if err := json.NewDecoder(res.Body).Decode(roalist); err != nil {
		return nil, fmt.Errorf("Decoding error: %v", err)
	}
	return roalist, nil
}
