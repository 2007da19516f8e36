// Package dlac decodes the 6-bit DLAC character set used throughout
// FIS-B text payloads. Three bytes unpack to four characters; character
// 28 is a tab whose following character is a run-length count of spaces.
package dlac

import "strings"

// alphabet indexed by 6-bit code. Code 0 and 28 are handled specially;
// '~' entries are placeholders stripped from the final text.
const alphabet = "~ABCDEFGHIJKLMNOPQRSTUVWXYZ~\t~\n| !\"#$%&'()*+,-./0123456789:;<=>?"

const tabCode = 28

// Decode expands n bytes starting at ba[off] into text. Some older
// ground stations encode the tab run length in only the low 4 bits of
// the following character; legacyTabHack masks the count accordingly.
func Decode(ba []byte, off, n int, legacyTabHack bool) string {
	var sb strings.Builder
	end := off + n
	if end > len(ba) {
		end = len(ba)
	}

	pendingTab := false
	emit := func(code byte) {
		if pendingTab {
			pendingTab = false
			count := int(code)
			if legacyTabHack {
				count &= 0x0F
			}
			for i := 0; i < count; i++ {
				sb.WriteByte(' ')
			}
			return
		}
		if code == tabCode {
			pendingTab = true
			return
		}
		sb.WriteByte(alphabet[code])
	}

	for i := off; i+2 < end; i += 3 {
		b0, b1, b2 := ba[i], ba[i+1], ba[i+2]
		emit(b0 >> 2)
		emit(((b0 & 0x03) << 4) | (b1 >> 4))
		emit(((b1 & 0x0F) << 2) | (b2 >> 6))
		emit(b2 & 0x3F)
	}

	// A trailing partial group still holds whole characters.
	switch rem := end - off; rem % 3 {
	case 1:
		emit(ba[end-1] >> 2)
	case 2:
		b0, b1 := ba[end-2], ba[end-1]
		emit(b0 >> 2)
		emit(((b0 & 0x03) << 4) | (b1 >> 4))
	}

	return strings.ReplaceAll(sb.String(), "~", "")
}
