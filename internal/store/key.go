package store

// PasswordKey derives the bolt key of the password stored for ssid: "pw-"
// followed by the 64-bit one-at-a-time hash of the SSID in 11 groups of 6
// bits, each offset into printable ASCII ('0' to 'o').
func PasswordKey(ssid string) string {
	h := oaat64(ssid)
	key := make([]byte, 0, 14)
	key = append(key, "pw-"...)
	for i := 0; i < 11; i++ {
		key = append(key, byte(h&0x3f)+'0')
		h >>= 6
	}
	return string(key)
}

func oaat64(s string) uint64 {
	h := uint64(525201411107845655)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 0x5bd1e9955bd1e995
		h ^= h >> 47
	}
	return h
}
