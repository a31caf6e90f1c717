package fmi

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const encodeChars = " _\\\"<>|!#$&'()*+,/:;=?@[]%"

// EncodeName percent-encodes every character in the reserved set used by the
// on-disk extraction path.
func EncodeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(encodeChars, r) {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ExtractionDirName returns "<encodedInstanceName>_<md5HexOfPackageFile>",
// a deterministic per-instance directory name.
func ExtractionDirName(instanceName, packagePath string) (string, error) {
	data, err := os.ReadFile(packagePath)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return fmt.Sprintf("%s_%s", EncodeName(instanceName), hex.EncodeToString(sum[:])), nil
}
