package l2products

import (
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// synthesizeServiceStatus turns a TIS-B service status frame into a
// product keyed by station. One sweep does not always list every
// aircraft the station follows; the curator pools them per station and
// ages each address out on this message's expiration.
func (s *Synthesizer) synthesizeServiceStatus(ss *fisb.ServiceStatusFrame, station string, rcvd time.Time) *fisb.Product {
	return &fisb.Product{
		Type:           fisb.TypeServiceStatus,
		UniqueName:     station,
		Station:        station,
		Traffic:        ss.Traffic,
		NoDigest:       true,
		ReceivedTime:   rcvd,
		ExpirationTime: rcvd.Add(s.cfg.ServiceStatusExpiration),
	}
}
