package cache

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// computeTag computes HMAC-SHA256(key, payload || schemaVersion || extensionID || version),
// matching the invariant hmac_tag = HMAC-SHA256(per_install_key,
// serialized_value || schema_version || key_material_for(id, version)).
func computeTag(key, payload []byte, schemaVersion int, extensionID, version string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)

	var schemaBuf [4]byte
	binary.BigEndian.PutUint32(schemaBuf[:], uint32(schemaVersion))
	mac.Write(schemaBuf[:])

	mac.Write([]byte(extensionID))
	mac.Write([]byte{0})
	mac.Write([]byte(version))

	return mac.Sum(nil)
}

// verifyTag reports whether tag authenticates payload under key, using a
// constant-time comparison to avoid leaking timing information about
// stored tags.
func verifyTag(key, payload []byte, schemaVersion int, extensionID, version string, tag []byte) bool {
	expected := computeTag(key, payload, schemaVersion, extensionID, version)
	return hmac.Equal(expected, tag)
}
