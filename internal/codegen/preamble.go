package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// Preamble binds the script to the target document and wipes whatever an
// earlier attempt built. Every executed script starts with it.
func Preamble(documentID string) string {
	return fmt.Sprintf(
		"import onpy\npartstudio = onpy.get_document(%s).get_partstudio()\npartstudio.wipe()\n",
		strconv.Quote(documentID),
	)
}

// Script assembles the file that is actually run.
func Script(documentID, code string) string {
	return Preamble(documentID) + "\n" + strings.TrimSpace(code) + "\n"
}

// CADEnv carries the CAD platform key pair into the script's environment.
func CADEnv(accessKey, secretKey string) []string {
	var env []string
	if accessKey != "" {
		env = append(env, "ONSHAPE_DEV_ACCESS="+accessKey)
	}
	if secretKey != "" {
		env = append(env, "ONSHAPE_DEV_SECRET="+secretKey)
	}
	return env
}
