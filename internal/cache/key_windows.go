//go:build windows

package cache

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// restrictKeyFile applies a DACL granting full control only to the file's
// owner, the closest Windows equivalent of POSIX 0o600.
func restrictKeyFile(path string) error {
	sd, err := windows.SecurityDescriptorFromString("D:PAI(A;;FA;;;OW)")
	if err != nil {
		return fmt.Errorf("building restrictive security descriptor: %w", err)
	}

	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("reading DACL from security descriptor: %w", err)
	}

	return windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	)
}
