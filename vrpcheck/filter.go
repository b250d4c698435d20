package vrpcheck

import "github.com/cloudflare/gortr/prefixfile"

// FilterInvalidVRPs drops entries that cannot take part in origin
// validation: prefixes that do not parse, and maxLength values below
// the prefix length or beyond the address family size. Hand-assembled
// VRP files carry these more often than validator exports do.
func FilterInvalidVRPs(vrps []prefixfile.ROAJson) []prefixfile.ROAJson {
	validVRPs := make([]prefixfile.ROAJson, 0)
	for _, vrp := range vrps {
		prefix := vrp.GetPrefix()
		if prefix == nil {
			continue
		}

		ones, bits := prefix.Mask.Size()
		maxlen := vrp.GetMaxLen()
		if maxlen < ones || maxlen > bits {
			continue
		}

		validVRPs = append(validVRPs, vrp)
	}

	return validVRPs
}

// FilterDuplicates keeps the first of identical entries.
func FilterDuplicates(vrps []prefixfile.ROAJson) []prefixfile.ROAJson {
	vrpsNodup := make([]prefixfile.ROAJson, 0)
	existingsVRPs := make(map[string]struct{})
	for _, vrp := range vrps {
		k := vrp.String()
		_, present := existingsVRPs[k]
		if !present {
			vrpsNodup = append(vrpsNodup, vrp)
			existingsVRPs[k] = struct{}{}
		}
	}

	return vrpsNodup
}
