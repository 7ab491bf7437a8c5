package wireless

import (
	"strings"
	"unicode"
)

// Product-family lookup by address prefix. Many units advertise anonymously,
// so the OUI prefix is often the only hint about what the hardware is.
var productFamilies = map[string]string{
	"C4:D3": "TasteProbe",
	"A8:10": "TasteProbe Mini",
	"D0:B5": "AquaSense",
}

// resolveName applies the ordered fallback chain for anonymous advertisers:
// advertised name, then a name field embedded in the manufacturer payload,
// then the address-prefix product-family lookup, finally a generic label
// from the transport kind and address suffix. The order matters and must
// not be rearranged.
func resolveName(adv Advertisement) string {
	if adv.Name != "" {
		return adv.Name
	}
	if name := nameFromManufacturerData(adv.ManufacturerData); name != "" {
		return name
	}
	if len(adv.Address) >= 5 {
		if family, ok := productFamilies[strings.ToUpper(adv.Address[:5])]; ok {
			return family
		}
	}
	return genericLabel(adv.Address)
}

// nameFromManufacturerData extracts a printable name from the vendor
// payload: two bytes of company identifier followed by an ASCII name. Any
// non-printable byte disqualifies the payload.
func nameFromManufacturerData(data []byte) string {
	if len(data) <= 2 {
		return ""
	}
	candidate := strings.TrimSpace(string(data[2:]))
	if candidate == "" {
		return ""
	}
	for _, r := range candidate {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return ""
		}
	}
	return candidate
}

func genericLabel(address string) string {
	suffix := address
	if len(address) >= 5 {
		suffix = address[len(address)-5:]
	}
	return "Wireless Sensor " + strings.ToUpper(suffix)
}
