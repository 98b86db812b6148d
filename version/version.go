package version

import (
	"fmt"
	"strings"
)

// validCharacters is the set of characters allowed in the appBuild string.
const validCharacters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appBuild is defined as a variable so it can be overridden during the build
// process with '-ldflags "-X github.com/peerwire/peerwire/version.appBuild=foo"'.
// It MUST only contain characters from validCharacters.
var appBuild string

var version = ""

// Version returns the library version as a properly formed string.
func Version() string {
	if version == "" {
		version = fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)

		build := checkAppBuild(appBuild)
		if build != "" {
			version = fmt.Sprintf("%s-%s", version, build)
		}
	}

	return version
}

// checkAppBuild returns the passed string unless it contains any characters
// not in validCharacters, in which case an empty string is returned.
func checkAppBuild(str string) string {
	for _, r := range str {
		if !strings.ContainsRune(validCharacters, r) {
			return ""
		}
	}
	return str
}
