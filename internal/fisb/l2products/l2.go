// Package l2products synthesizes complete, individually meaningful
// products out of assembled L1 messages: full timestamps are
// reconstructed from the fragments the broadcast carries, overlay
// geometry is normalized, and every product gets a (type, unique name)
// identity and an expiration time.
package l2products

import (
	"fmt"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
)

// Synthesizer is the L2 stage. Stateless apart from its config; safe
// for concurrent use.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer builds a synthesizer with the given expiration policy.
func NewSynthesizer(cfg Config) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

// Process turns one L1 message into products. Most messages yield one;
// image blocks can fan out, and keep-alives yield none.
func (s *Synthesizer) Process(msg *l1assembly.Message) ([]*fisb.Product, error) {
	switch {
	case msg.CRL != nil:
		p, err := s.synthesizeCRL(msg.CRL, msg.Station, msg.ReceivedTime)
		return single(p), err
	case msg.ServiceStatus != nil:
		return single(s.synthesizeServiceStatus(msg.ServiceStatus, msg.Station, msg.ReceivedTime)), nil
	case msg.APDU != nil:
		return s.processAPDU(msg)
	}
	return nil, nil
}

func (s *Synthesizer) processAPDU(msg *l1assembly.Message) ([]*fisb.Product, error) {
	a := msg.APDU
	if a.SegFlag {
		return nil, fmt.Errorf("segmented APDU reached synthesis")
	}
	if err := twgoSanity(a); err != nil {
		Diagf("station %s: %v", msg.Station, err)
		return nil, nil
	}

	switch a.ProductID {
	case fisb.ProductGenericText:
		p, err := s.synthesizeText(a, msg.ReceivedTime)
		return single(p), err
	case fisb.ProductNOTAM, fisb.ProductNOTAMTRA, fisb.ProductNOTAMTMOA:
		p, err := s.synthesizeNOTAM(msg)
		return single(p), err
	case fisb.ProductAIRMET, fisb.ProductSIGMET, fisb.ProductCWA:
		p, err := s.synthesizeSIGWX(msg)
		return single(p), err
	case fisb.ProductGAIRMET:
		p, err := s.synthesizeGAIRMET(msg)
		return single(p), err
	case fisb.ProductSUA:
		if a.TWGO == nil || len(a.TWGO.Text) == 0 {
			return nil, fmt.Errorf("SUA message has no text record")
		}
		p, err := s.synthesizeSUA(&a.TWGO.Text[0], msg.ReceivedTime)
		return single(p), err
	case fisb.ProductNEXRADRegion, fisb.ProductNEXRADCONUS,
		fisb.ProductIcingLow, fisb.ProductIcingHigh,
		fisb.ProductCloudTops, fisb.ProductTurbLow, fisb.ProductTurbHigh,
		fisb.ProductLightning:
		return s.synthesizeBlock(a, msg.ReceivedTime)
	}
	return nil, fmt.Errorf("unknown product id %d", a.ProductID)
}

// twgoSanity drops payloads the standard says to ignore: record formats
// other than 2 and 8, and reference points other than 0 and 255.
func twgoSanity(a *fisb.APDU) error {
	t := a.TWGO
	if t == nil {
		return nil
	}
	if t.RecordFormat != 2 && t.RecordFormat != 8 {
		return fmt.Errorf("product %d record format %d ignored", a.ProductID, t.RecordFormat)
	}
	if t.RecordReferencePoint != 0 && t.RecordReferencePoint != 255 {
		return fmt.Errorf("product %d reference point %d ignored", a.ProductID, t.RecordReferencePoint)
	}
	return nil
}

func single(p *fisb.Product) []*fisb.Product {
	if p == nil {
		return nil
	}
	return []*fisb.Product{p}
}
