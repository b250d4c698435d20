package vrpcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudflare/gortr/prefixfile"
	"github.com/stretchr/testify/assert"
)

func testVRPs() []prefixfile.ROAJson {
	return []prefixfile.ROAJson{
		{Prefix: "10.0.0.0/16", Length: 24, ASN: "AS65001", TA: "test"},
		{Prefix: "10.0.0.0/8", Length: 16, ASN: "AS65002", TA: "test"},
		{Prefix: "172.16.0.0/12", Length: 12, ASN: "AS65003"},
		{Prefix: "2001:db8::/32", Length: 48, ASN: "AS65004"},
		{Prefix: "not-a-prefix", Length: 24, ASN: "AS65005"},
	}
}

func TestIndexValidate(t *testing.T) {
	idx := NewIndex(testVRPs())

	tests := []struct {
		name     string
		prefix   string
		asn      uint32
		expected int
		covering int
	}{
		{
			name:     "Matching origin within maxLength",
			prefix:   "10.0.0.0/24",
			asn:      65001,
			expected: STATE_VALID,
			covering: 2,
		},
		{
			name:     "Wrong origin",
			prefix:   "10.0.0.0/24",
			asn:      64999,
			expected: STATE_INVALID,
			covering: 2,
		},
		{
			name:     "Too specific for its VRP",
			prefix:   "10.1.2.0/24",
			asn:      65002,
			expected: STATE_INVALID,
			covering: 1,
		},
		{
			name:     "Exact length equals maxLength",
			prefix:   "172.16.0.0/12",
			asn:      65003,
			expected: STATE_VALID,
			covering: 1,
		},
		{
			name:     "No covering VRP",
			prefix:   "192.168.0.0/16",
			asn:      65001,
			expected: STATE_UNKNOWN,
			covering: 0,
		},
		{
			name:     "IPv6 valid",
			prefix:   "2001:db8:1::/48",
			asn:      65004,
			expected: STATE_VALID,
			covering: 1,
		},
		{
			name:     "IPv6 no covering VRP",
			prefix:   "2001:db9::/32",
			asn:      65004,
			expected: STATE_UNKNOWN,
			covering: 0,
		},
	}

	for _, test := range tests {
		verdict, err := idx.Validate(test.prefix, test.asn)
		if err != nil {
			t.Errorf("unexpected error for %q: %v", test.name, err)
			continue
		}

		assert.Equal(t, StateToName[test.expected], StateToName[verdict.State], test.name)
		assert.Len(t, verdict.Covering, test.covering, test.name)
	}
}

func TestIndexValidateBadPrefix(t *testing.T) {
	idx := NewIndex(testVRPs())
	_, err := idx.Validate("nonsense", 65001)
	assert.Error(t, err)
}

func TestVerdictDescriptions(t *testing.T) {
	idx := NewIndex(testVRPs())
	verdict, err := idx.Validate("10.0.0.0/24", 65001)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		"10.0.0.0/16-24 AS65001 (ta: test)",
		"10.0.0.0/8-16 AS65002 (ta: test)",
	}
	assert.Equal(t, expected, verdict.Descriptions())
}

func TestDescribe(t *testing.T) {
	withTA := prefixfile.ROAJson{Prefix: "10.0.0.0/16", Length: 24, ASN: "AS65001", TA: "arin"}
	assert.Equal(t, "10.0.0.0/16-24 AS65001 (ta: arin)", Describe(withTA))

	without := prefixfile.ROAJson{Prefix: "10.0.0.0/16", Length: 24, ASN: "AS65001"}
	assert.Equal(t, "10.0.0.0/16-24 AS65001", Describe(without))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")
	data := []byte(`{
  "metadata": {"counts": 2},
  "roas": [
    {"prefix": "10.0.0.0/16", "maxLength": 24, "asn": "AS65001", "ta": "test"},
    {"prefix": "2001:db8::/32", "maxLength": 48, "asn": "AS65004"}
  ]
}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	roalist, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Len(t, roalist.Data, 2)
	assert.Equal(t, uint32(65001), roalist.Data[0].GetASN())
	assert.Equal(t, 24, roalist.Data[0].GetMaxLen())
	assert.Equal(t, "test", roalist.Data[0].TA)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{roas:"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	assert.Error(t, err)
}
